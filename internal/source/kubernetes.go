package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/autokuma/autokuma/internal/config"
	"github.com/autokuma/autokuma/internal/entity"
)

// kumaEntityGVR addresses the KumaEntity custom resource.
var kumaEntityGVR = schema.GroupVersionResource{
	Group:    "autokuma.bigboot.dev",
	Version:  "v1",
	Resource: "kumaentities",
}

// KubernetesSource watches KumaEntity custom resources through a dynamic
// informer. Each CR carries a settings object in spec.config and maps to one
// bundle named after the CR.
type KubernetesSource struct {
	cfg      *config.Config
	dyn      dynamic.Interface
	notify   chan<- struct{}
	logger   *zap.Logger
	informer cache.SharedIndexInformer
	stopCh   chan struct{}
}

// NewKubernetesSource builds the CR adapter over an existing dynamic client.
func NewKubernetesSource(cfg *config.Config, dyn dynamic.Interface, notify chan<- struct{}, logger *zap.Logger) *KubernetesSource {
	return &KubernetesSource{cfg: cfg, dyn: dyn, notify: notify, logger: logger}
}

func (k *KubernetesSource) Name() string { return "kubernetes" }

// Start launches the informer and waits for its cache to sync so the first
// reconcile sees the full CR set.
func (k *KubernetesSource) Start(ctx context.Context) error {
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(
		k.dyn,
		0,
		k.cfg.Kubernetes.Namespace,
		nil,
	)

	k.informer = factory.ForResource(kumaEntityGVR).Informer()
	_, err := k.informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj interface{}) { Nudge(k.notify) },
		UpdateFunc: func(oldObj, newObj interface{}) { Nudge(k.notify) },
		DeleteFunc: func(obj interface{}) { Nudge(k.notify) },
	})
	if err != nil {
		return fmt.Errorf("registering KumaEntity handler: %w", err)
	}

	k.stopCh = make(chan struct{})
	go func() {
		<-ctx.Done()
		close(k.stopCh)
	}()
	go k.informer.Run(k.stopCh)

	if !cache.WaitForCacheSync(k.stopCh, k.informer.HasSynced) {
		return fmt.Errorf("KumaEntity informer cache did not sync; is the CRD installed?")
	}
	k.logger.Info("watching KumaEntity resources",
		zap.String("namespace", k.cfg.Kubernetes.Namespace),
	)
	return nil
}

func (k *KubernetesSource) Close() error { return nil }

// Bundles reads the informer's store; no API round-trip per tick.
func (k *KubernetesSource) Bundles(_ context.Context) ([]entity.Bundle, error) {
	if k.informer == nil {
		return nil, nil
	}

	var bundles []entity.Bundle
	for _, obj := range k.informer.GetStore().List() {
		item, ok := obj.(*unstructured.Unstructured)
		if !ok {
			continue
		}

		name := item.GetName()
		settings, found, err := unstructured.NestedMap(item.Object, "spec", "config")
		if err != nil || !found {
			k.logger.Warn("KumaEntity without spec.config",
				zap.String("name", name),
				zap.String("namespace", item.GetNamespace()),
			)
			continue
		}

		labels, err := flattenSettings(name, settings)
		if err != nil {
			k.logger.Warn("invalid KumaEntity config",
				zap.String("name", name),
				zap.Error(err),
			)
			continue
		}

		bundles = append(bundles, entity.Bundle{
			SourceKind: k.Name(),
			SourceID:   item.GetNamespace() + "/" + name,
			Labels:     labels,
			Context: map[string]any{
				"resource": map[string]any{
					"name":      name,
					"namespace": item.GetNamespace(),
					"labels":    item.GetLabels(),
				},
			},
		})
	}
	return bundles, nil
}
