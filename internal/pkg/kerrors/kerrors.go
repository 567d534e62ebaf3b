package kerrors

// Linux kernel error codes
const (
	EPERM     int64 = 1  // Operation not permitted
	ENOENT    int64 = 2  // No such file or directory
	EIO       int64 = 5  // I/O error
	ENOMEM    int64 = 12 // Out of memory
	EEXIST    int64 = 17 // File exists
	ENOTDIR   int64 = 20 // Not a directory
	EISDIR    int64 = 21 // Is a directory
	EINVAL    int64 = 22 // Invalid argument
	EFBIG     int64 = 27 // File too large
	ENOTEMPTY int64 = 39 // Directory not empty
)
