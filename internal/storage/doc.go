// Package storage is the bot's document store.
//
// All state lives in memory as one State value and is written out as a whole
// snapshot after every mutation. The snapshot format is the same for every
// backend:
//
//	{
//	  "subscribers":      {"<user id>": {...}},
//	  "price_lists":      {"<id>": {...}},
//	  "campaigns":        {"<id>": {...}},
//	  "campaign_stats":   {"<campaign id>": {"<user id>": {...}}},
//	  "next_price_id":    1,
//	  "next_campaign_id": 1
//	}
//
// Backends only move bytes: "file" (atomic rename), "sqlite" (single row),
// "bolt" (single key) and "memory".
package storage
