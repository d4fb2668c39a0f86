package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob.Store implementation using environment variables.
//
//	WARDROSTER_BLOB_DRIVER: fs|s3|memory|redis (default fs)
//	WARDROSTER_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 and Redis variables documented in the infra drivers)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("WARDROSTER_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("WARDROSTER_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return OpenRedisFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
