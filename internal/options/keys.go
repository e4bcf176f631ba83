package options

// Limit keys, valid with any family.
const (
	KeyTimeout             = "timeout"
	KeyReadLimitTimeMs     = "readLimitTimeMs"
	KeyMaxSourceSizeKBytes = "maxSourceSizeKBytes"
	KeyReadLimitKBytes     = "readLimitKBytes"
	KeyMaxPages            = "maxPages"
	KeyPageLimit           = "pageLimit"
)

const KeyIncludeContents = "includeContents"

// Flash family.
const KeyFlashVersion = "flashVersion"

// Image family.
const (
	KeyAlphaRemove    = "alphaRemove"
	KeyAutoOrient     = "autoOrient"
	KeyCommandOptions = "commandOptions"

	KeyStartPage = "startPage"
	KeyEndPage   = "endPage"

	KeyCropGravity    = "cropGravity"
	KeyCropWidth      = "cropWidth"
	KeyCropHeight     = "cropHeight"
	KeyCropPercentage = "cropPercentage"
	KeyCropXOffset    = "cropXOffset"
	KeyCropYOffset    = "cropYOffset"

	KeyOffset   = "offset"
	KeyDuration = "duration"

	KeyThumbnail           = "thumbnail"
	KeyResizeWidth         = "resizeWidth"
	KeyResizeHeight        = "resizeHeight"
	KeyResizePercentage    = "resizePercentage"
	KeyAllowEnlargement    = "allowEnlargement"
	KeyMaintainAspectRatio = "maintainAspectRatio"
)

// PDF family.
const (
	KeyPage                   = "page"
	KeyWidth                  = "width"
	KeyHeight                 = "height"
	KeyAllowPdfEnlargement    = "allowPdfEnlargement"
	KeyMaintainPdfAspectRatio = "maintainPdfAspectRatio"
)

type keySet map[string]struct{}

func newKeySet(keys ...string) keySet {
	s := make(keySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s keySet) has(k string) bool {
	_, ok := s[k]
	return ok
}

func (s keySet) containsAll(keys []string) bool {
	for _, k := range keys {
		if !s.has(k) {
			return false
		}
	}
	return true
}

func (s keySet) any(opts map[string]string) bool {
	for k := range s {
		if _, ok := opts[k]; ok {
			return true
		}
	}
	return false
}

var (
	limitKeys = newKeySet(KeyTimeout, KeyReadLimitTimeMs, KeyMaxSourceSizeKBytes,
		KeyReadLimitKBytes, KeyMaxPages, KeyPageLimit)

	pagingKeys   = newKeySet(KeyStartPage, KeyEndPage)
	cropKeys     = newKeySet(KeyCropGravity, KeyCropWidth, KeyCropHeight, KeyCropPercentage, KeyCropXOffset, KeyCropYOffset)
	temporalKeys = newKeySet(KeyOffset, KeyDuration)
	resizeKeys   = newKeySet(KeyThumbnail, KeyResizeWidth, KeyResizeHeight, KeyResizePercentage,
		KeyAllowEnlargement, KeyMaintainAspectRatio)
)

type family struct {
	kind Kind
	keys keySet
}

// families is ordered; Translate picks the first one containing every media
// key.
var families = []family{
	{kind: KindFlash, keys: newKeySet(KeyFlashVersion)},
	{kind: KindImage, keys: union(
		newKeySet(KeyAlphaRemove, KeyAutoOrient, KeyCommandOptions),
		pagingKeys, cropKeys, temporalKeys, resizeKeys,
	)},
	{kind: KindPDF, keys: newKeySet(KeyPage, KeyWidth, KeyHeight, KeyAllowPdfEnlargement, KeyMaintainPdfAspectRatio)},
}

func union(sets ...keySet) keySet {
	out := keySet{}
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}
