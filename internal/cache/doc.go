// Package cache keeps synthesized speech clips so a repeated block is not
// sent to the speech backend twice. Clips live in a byte-bounded LRU in
// memory and, optionally, in zstd-compressed files on disk that survive
// restarts.
package cache
