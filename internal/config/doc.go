// Package config loads shard-topology configuration shared by cmd/shard and
// cmd/coordinator: the fixed shard count, each shard's listen/backend
// settings, and the coordinator's own address.
//
// Configuration is layered the way the teacher's cmd/node and
// cmd/coordinator already layer NODE_ADDR/NODE_LISTEN: an optional TOML
// file supplies defaults for values that are awkward to express as flat
// env vars (the per-shard topology table), and individual environment
// variables override any file value for the single process being
// started. There is no separate "config service"; each binary loads its
// own config at startup.
package config
