// Package storage holds the clients for external stores other than the
// relational database: S3 compatible object storage for project documents
// and Redis for the shared rate limiter.
//
// Document bytes never pass through the API. Clients receive short lived
// presigned URLs and talk to the bucket directly; the API only keeps the
// document metadata row and the object key.
package storage
