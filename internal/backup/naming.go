package backup

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	blobPrefix      = "backup-"
	encryptedSuffix = ".enc"
	legacySuffix    = ".json"

	blobTimestampLayout = "2006-01-02T15:04:05.000Z"
	legacyDateLayout    = "2006-01-02"
)

// Embedded timestamps are ISO-8601 with ':' and '.' replaced by '-'.
var (
	stampReplacer = strings.NewReplacer(":", "-", ".", "-")
	stampPattern  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2})-(\d{2})-(\d{2})(?:-(\d{1,9}))?Z$`)
)

// BlobName returns the name of the encrypted blob created at t
func BlobName(t time.Time) string {
	return blobPrefix + stampReplacer.Replace(t.UTC().Format(blobTimestampLayout)) + encryptedSuffix
}

func parseStamp(stamp string) (time.Time, bool) {
	m := stampPattern.FindStringSubmatch(stamp)
	if m == nil {
		return time.Time{}, false
	}
	value := fmt.Sprintf("%sT%s:%s:%s", m[1], m[2], m[3], m[4])
	if m[5] != "" {
		value += "." + m[5]
	}
	created, err := time.Parse(time.RFC3339Nano, value+"Z")
	if err != nil {
		return time.Time{}, false
	}
	return created.UTC(), true
}

// ParseBlobName classifies a stored name and extracts its embedded
// timestamp. Legacy blobs whose date cannot be parsed are still legacy.
func ParseBlobName(name string) (BlobKind, time.Time) {
	if !strings.HasPrefix(name, blobPrefix) {
		return BlobKindUnknown, time.Time{}
	}

	switch {
	case strings.HasSuffix(name, encryptedSuffix):
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, blobPrefix), encryptedSuffix)
		created, ok := parseStamp(stamp)
		if !ok {
			return BlobKindUnknown, time.Time{}
		}
		return BlobKindEncrypted, created

	case strings.HasSuffix(name, legacySuffix):
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, blobPrefix), legacySuffix)
		if created, err := time.Parse(legacyDateLayout, stamp); err == nil {
			return BlobKindLegacy, created.UTC()
		}
		created, _ := parseStamp(stamp)
		return BlobKindLegacy, created
	}

	return BlobKindUnknown, time.Time{}
}

// DescribeObjects turns store listings into blob infos, newest first.
// Names that are not backups sort last.
func DescribeObjects(objects []ObjectInfo) []BlobInfo {
	infos := make([]BlobInfo, 0, len(objects))
	for _, object := range objects {
		kind, created := ParseBlobName(object.Name)
		infos = append(infos, BlobInfo{
			Name:    object.Name,
			Kind:    kind,
			Created: created,
			Size:    object.Size,
			ModTime: object.ModTime,
		})
	}
	sortBlobsNewestFirst(infos)
	return infos
}

func sortBlobsNewestFirst(infos []BlobInfo) {
	rank := map[BlobKind]int{BlobKindEncrypted: 0, BlobKindLegacy: 1, BlobKindUnknown: 2}
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		if rank[a.Kind] != rank[b.Kind] {
			return rank[a.Kind] < rank[b.Kind]
		}
		if !a.Created.Equal(b.Created) {
			return a.Created.After(b.Created)
		}
		return a.Name > b.Name
	})
}
