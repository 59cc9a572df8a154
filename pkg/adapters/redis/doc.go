/*
Package redis provides the Redis-backed session adapters.

Store persists snapshots as JSON under "<prefix><session id>" and indexes them in a sorted set
"<prefix>index" scored by expiry, so List can prune expired sessions lazily. Locker serializes
session lifecycle operations across replicas with SET NX and a token-checked release.
*/
package redis
