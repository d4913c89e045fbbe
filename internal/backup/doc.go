// Package backup archives a storage directory into single checksummed files
// and restores them.
//
// Archive layout:
//
//	magic "DIRSTBAK" | u32 header len | header JSON | u32 data len | data | sha256
//
// The data block is a JSON array of entries holding the raw file contents,
// so archives are independent of the codec used for the directory. When a
// cipher is configured the data block is sealed with the header as
// additional data. Archives are named backup-<ULID>.dsb, so lexical order is
// creation order.
package backup
