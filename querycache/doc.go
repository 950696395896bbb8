// Package querycache is a tag-invalidated cache for read endpoints.
//
// A Query caches results per (name, argument) and labels each entry with the tags it provides.
// A successful Mutation invalidates tags: every entry carrying one of them becomes stale,
// entries that are watched by at least one subscriber are re-fetched immediately and entries
// nobody watches are dropped on their next access. There is no time-based expiry.
package querycache
