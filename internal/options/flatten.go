package options

import "strconv"

// ToMap is the inverse of Translate for the options that were set. Defaults
// are written out, so the result may carry more keys than the input.
func ToMap(o *TransformationOptions) map[string]string {
	m := map[string]string{}
	if o == nil {
		return m
	}
	if o.IncludeEmbedded {
		m[KeyIncludeContents] = "true"
	}
	putLimit(m, KeyTimeout, o.Limits.TimeoutMs)
	putLimit(m, KeyReadLimitTimeMs, o.Limits.ReadLimitTimeMs)
	putLimit(m, KeyMaxSourceSizeKBytes, o.Limits.MaxSourceSizeKBytes)
	putLimit(m, KeyReadLimitKBytes, o.Limits.ReadLimitKBytes)
	putLimit(m, KeyMaxPages, int64(o.Limits.MaxPages))
	putLimit(m, KeyPageLimit, int64(o.Limits.PageLimit))

	if o.Flash != nil {
		m[KeyFlashVersion] = o.Flash.Version
	}
	if img := o.Image; img != nil {
		if img.AlphaRemove {
			m[KeyAlphaRemove] = "true"
		}
		if img.AutoOrient {
			m[KeyAutoOrient] = "true"
		}
		if img.CommandOptions != "" {
			m[KeyCommandOptions] = img.CommandOptions
		}
		if pg := img.Paging; pg != nil {
			m[KeyStartPage] = strconv.Itoa(pg.StartPage)
			m[KeyEndPage] = strconv.Itoa(pg.EndPage)
		}
		if c := img.Crop; c != nil {
			if c.Gravity != "" {
				m[KeyCropGravity] = c.Gravity
			}
			m[KeyCropWidth] = strconv.Itoa(c.Width)
			m[KeyCropHeight] = strconv.Itoa(c.Height)
			m[KeyCropPercentage] = strconv.FormatBool(c.Percentage)
			m[KeyCropXOffset] = strconv.Itoa(c.XOffset)
			m[KeyCropYOffset] = strconv.Itoa(c.YOffset)
		}
		if t := img.Temporal; t != nil {
			if t.Offset != "" {
				m[KeyOffset] = t.Offset
			}
			if t.Duration != "" {
				m[KeyDuration] = t.Duration
			}
		}
		if r := img.Resize; r != nil {
			m[KeyResizeWidth] = strconv.Itoa(r.Width)
			m[KeyResizeHeight] = strconv.Itoa(r.Height)
			m[KeyResizePercentage] = strconv.FormatBool(r.Percentage)
			m[KeyAllowEnlargement] = strconv.FormatBool(r.AllowEnlargement)
			m[KeyMaintainAspectRatio] = strconv.FormatBool(r.MaintainAspectRatio)
			m[KeyThumbnail] = strconv.FormatBool(r.Thumbnail)
		}
	}
	if pdf := o.PDF; pdf != nil {
		m[KeyPage] = strconv.Itoa(pdf.Page)
		m[KeyWidth] = strconv.Itoa(pdf.Width)
		m[KeyHeight] = strconv.Itoa(pdf.Height)
		m[KeyAllowPdfEnlargement] = strconv.FormatBool(pdf.AllowEnlargement)
		m[KeyMaintainPdfAspectRatio] = strconv.FormatBool(pdf.MaintainAspectRatio)
	}
	return m
}

func putLimit(m map[string]string, key string, v int64) {
	if v >= 0 {
		m[key] = strconv.FormatInt(v, 10)
	}
}
