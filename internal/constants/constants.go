package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	ServiceName = "alert-relay"
)

// Dedup namespaces. The file store uses them as file name prefixes, Redis as key segments.
const (
	NamespaceAlerts   = "alerts_cache_"
	NamespaceVehicles = "vehicles_cache_"

	// Vehicle codes and plates already registered, kept across runs.
	NamespaceVehicleCodes  = "vehicles_cache_codes_"
	NamespaceVehiclePlates = "vehicles_cache_plates_"
)

const (
	BucketLayout = "20060102"
)

const (
	StoreTypeFile  = "file"
	StoreTypeRedis = "redis"
)

const (
	BrokerTypeNone  = "none"
	BrokerTypeKafka = "kafka"
)

const (
	MaxShortDescriptionRunes = 1000
	MaxDetailsRunes          = 1000
	MaxRawPayloadRunes       = 5000
	MaxSubjectRunes          = 255
)

const (
	UnknownVehicleCode = "UNKNOWN"
	EmptyPayload       = "EMPTY_EMAIL"
)
