package config

// Logical name of the dispatched service, used in instance tags and metrics
const SERVICE_NAME = "service.name"

// Domain (host[:port]) of the always-on baseline service
const BASELINE_DOMAIN = "service.baseline.domain"

// Context path under which the digest service is mounted on every host
const SERVICE_CONTEXT = "service.context"

// Objects of at least this many bytes are dispatched to an ephemeral instance
const SIZE_THRESHOLD = "dispatcher.threshold.bytes"

// Owner tag value attached to every launched instance
const OWNER_TAG = "dispatcher.owner"

// EC2 launch template
const AWS_REGION = "aws.region"
const INSTANCE_IMAGE_ID = "aws.instance.image"
const INSTANCE_TYPE = "aws.instance.type"
const INSTANCE_KEY_NAME = "aws.instance.key"
const INSTANCE_SECURITY_GROUPS = "aws.instance.security_groups"
const INSTANCE_IAM_PROFILE = "aws.instance.iam_profile"

// Instance readiness polling (seconds)
const INSTANCE_POLL_INTERVAL = "dispatcher.instance.poll_interval"
const INSTANCE_POLL_TIMEOUT = "dispatcher.instance.timeout"

// Health check polling (seconds)
const HEALTH_POLL_INTERVAL = "dispatcher.healthcheck.poll_interval"
const HEALTH_POLL_TIMEOUT = "dispatcher.healthcheck.timeout"

// Delivery retries towards ephemeral instances
const DELIVERY_ATTEMPTS = "dispatcher.delivery.attempts"
const DELIVERY_INTERVAL = "dispatcher.delivery.interval"

// Delay (seconds) after which a launched instance is terminated
const TERMINATION_GRACE = "dispatcher.termination.grace"

// Etcd server hostname
const ETCD_ADDRESS = "etcd.address"

// Stores the termination ledger on etcd (true/false). If false, an in-memory ledger is used.
const LEDGER_ETCD = "ledger.etcd"

// Reaper sweep interval (seconds)
const REAPER_INTERVAL = "reaper.interval"

// exposed port for the HTTP API
const API_PORT = "api.port"

// Enables metrics exposition
const METRICS_ENABLED = "metrics.enabled"
const METRICS_PORT = "metrics.port"

// Log level (debug, info, warn, error) and development encoder
const LOG_LEVEL = "logging.level"
const LOG_DEVELOPMENT = "logging.development"
