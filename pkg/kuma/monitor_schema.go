package kuma

import "encoding/json"

// fieldKind drives coercion of type-specific monitor fields, which arrive
// from labels as plain strings but must be typed on the wire.
type fieldKind int

const (
	fieldString fieldKind = iota
	fieldInt
	fieldFloat
	fieldBool
	fieldStringList
	fieldJSON
)

// monitorFieldKinds enumerates the recognized type-specific fields across
// all monitor types. Fields absent here pass through untouched.
var monitorFieldKinds = map[string]fieldKind{
	// http / keyword / json-query / real-browser
	"url":                fieldString,
	"method":             fieldString,
	"body":               fieldString,
	"headers":            fieldString,
	"keyword":            fieldString,
	"invertKeyword":      fieldBool,
	"jsonPath":           fieldString,
	"expectedValue":      fieldString,
	"maxredirects":       fieldInt,
	"expiryNotification": fieldBool,
	"ignoreTls":          fieldBool,
	"httpBodyEncoding":   fieldString,
	"authMethod":         fieldString,
	"basic_auth_user":    fieldString,
	"basic_auth_pass":    fieldString,
	"timeout":            fieldInt,
	"resendInterval":     fieldInt,
	"packetSize":         fieldInt,

	// dns
	"dns_resolve_server": fieldString,
	"dns_resolve_port":   fieldInt,
	"dns_resolve_type":   fieldString,

	// ping / port / tailscale-ping / steam / gamedig
	"hostname":             fieldString,
	"port":                 fieldInt,
	"game":                 fieldString,
	"gamedigGivenPortOnly": fieldBool,

	// docker
	"docker_container": fieldString,
	"docker_host":      fieldInt,

	// databases / brokers
	"databaseConnectionString":            fieldString,
	"databaseQuery":                       fieldString,
	"radiusUsername":                      fieldString,
	"radiusPassword":                      fieldString,
	"radiusSecret":                        fieldString,
	"radiusCalledStationId":               fieldString,
	"radiusCallingStationId":              fieldString,
	"grpcUrl":                             fieldString,
	"grpcEnableTls":                       fieldBool,
	"grpcServiceName":                     fieldString,
	"grpcMethod":                          fieldString,
	"grpcProtobuf":                        fieldString,
	"grpcBody":                            fieldString,
	"mqttUsername":                        fieldString,
	"mqttPassword":                        fieldString,
	"mqttTopic":                           fieldString,
	"mqttSuccessMessage":                  fieldString,
	"kafkaProducerBrokers":                fieldStringList,
	"kafkaProducerTopic":                  fieldString,
	"kafkaProducerMessage":                fieldString,
	"kafkaProducerSsl":                    fieldBool,
	"kafkaProducerAllowAutoTopicCreation": fieldBool,
	"kafkaProducerSaslOptions":            fieldJSON,

	// push / snmp
	"pushToken":        fieldString,
	"snmpOid":          fieldString,
	"snmpVersion":      fieldString,
	"jsonPathOperator": fieldString,
}

// normalizeExtra re-types string-carried values in Extra according to the
// schema table, so label-synthesized monitors serialize the way the server
// returns them.
func normalizeExtra(extra map[string]json.RawMessage) {
	for key, raw := range extra {
		kind, known := monitorFieldKinds[key]
		if !known || kind == fieldString {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue // already structured
		}
		switch kind {
		case fieldInt:
			var v Int
			if err := v.UnmarshalJSON(raw); err == nil {
				extra[key], _ = json.Marshal(int(v))
			}
		case fieldFloat:
			var f float64
			if err := json.Unmarshal([]byte(s), &f); err == nil {
				extra[key], _ = json.Marshal(f)
			}
		case fieldBool:
			var v Bool
			if err := v.UnmarshalJSON(raw); err == nil {
				extra[key], _ = json.Marshal(bool(v))
			}
		case fieldStringList:
			var v StringList
			if err := v.UnmarshalJSON(raw); err == nil {
				extra[key], _ = json.Marshal([]string(v))
			}
		case fieldJSON:
			var v any
			if err := json.Unmarshal([]byte(s), &v); err == nil {
				extra[key], _ = json.Marshal(v)
			}
		}
	}
}
