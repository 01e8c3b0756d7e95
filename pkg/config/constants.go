package config

// EnvPrefix scopes every variable read by envconfig.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret  = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer  = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeSecret = "STOREFRONT_STRIPE_SECRET"

	EnvCatalogPerPage         = "STOREFRONT_CATALOG_PER_PAGE"
	EnvCheckoutPaymentTimeout = "STOREFRONT_CHECKOUT_PAYMENT_TIMEOUT"
	EnvInvoiceDir             = "STOREFRONT_INVOICE_DIR"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
