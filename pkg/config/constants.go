package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultBaseURL = "http://localhost:3000"
)

const (
	EnvAppEnv      = "STOREFRONT_APP_ENV"
	EnvPort        = "STOREFRONT_APP_PORT"
	EnvDBDSN       = "STOREFRONT_DB_DSN"
	EnvDBHost      = "STOREFRONT_DB_HOST"
	EnvDBUser      = "STOREFRONT_DB_USER"
	EnvDBName      = "STOREFRONT_DB_NAME"
	EnvRedisURL    = "STOREFRONT_REDIS_URL"
	EnvJWTSecret   = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer   = "STOREFRONT_JWT_ISSUER"
	EnvBaseURL     = "STOREFRONT_BASE_URL"
	EnvStripeKey   = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeHook  = "STOREFRONT_STRIPE_SECRET"
	EnvGCPProject  = "STOREFRONT_GCP_PROJECT_ID"
	EnvOrderTopic  = "STOREFRONT_PUBSUB_ORDER_EVENTS_TOPIC"
	EnvAnyFallback = "STOREFRONT_CHECKOUT_ALLOW_ANY_VARIANT_FALLBACK"
)
