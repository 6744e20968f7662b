// Package config provides application configuration management from environment variables.
//
// # Overview
//
// Configuration is read once at startup. cmd/groundwork loads an optional .env file
// before calling LoadConfig, so local development can keep secrets out of the shell.
//
// # Configuration Structure
//
// Server settings:
//
//	HTTP_HOST="0.0.0.0"
//	HTTP_PORT="8080"
//	HTTP_READ_TIMEOUT="15s"
//	HTTP_REQUEST_TIMEOUT="30s"
//	APP_URL="https://app.example.com"
//
// Database settings:
//
//	DATABASE_URL="postgres://localhost/groundwork?sslmode=disable"
//	DB_MAX_OPEN_CONNS="25"
//
// Identity provider settings. The service account may be raw JSON, base64 encoded
// JSON, or the individual IDP_CLIENT_SECRET / IDP_TOKEN_URL / IDP_ADMIN_URL fields:
//
//	IDP_ISSUER_URL="https://idp.example.com"
//	IDP_CLIENT_ID="groundwork"
//	IDP_SERVICE_ACCOUNT='{"client_id":"...","client_secret":"...","token_url":"..."}'
//
// Webhooks, rate limiting and storage:
//
//	WEBHOOK_SECRET="..."
//	REDIS_URL="redis://localhost:6379/0"
//	S3_BUCKET="groundwork-documents"
//	S3_REGION="us-east-1"
//
// Observability settings:
//
//	LOG_LEVEL="info"  # debug, info, warn, error
//	LOG_FORMAT="json" # json, text
//	OTEL_ENABLED="true"
//	OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server: %s\n", cfg.Server.Addr())
package config
