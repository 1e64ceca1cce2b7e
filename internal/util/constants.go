package util

const DateFormat = "2006-01-02"

const (
	StorageLocal  = "local"
	StorageMinio  = "minio"
	StorageOSS    = "oss"
	StorageMemory = "memory"
)

const (
	MimePNG = "image/png"
)

// XPPerLevel 每多少经验升一级
const XPPerLevel = 200
