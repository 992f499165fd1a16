// Package kubernetes provides Kubernetes client construction utilities.
package kubernetes

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewDynamicClient creates a dynamic Kubernetes client for watching the
// KumaEntity custom resource. It tries in-cluster config first, then falls
// back to kubeconfig.
func NewDynamicClient(logger *zap.Logger) (dynamic.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		logger.Info("not running in-cluster, trying kubeconfig")
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			home, _ := os.UserHomeDir()
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return dyn, nil
}
