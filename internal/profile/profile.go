package profile

import (
	"errors"
	"fmt"
)

// ErrUnknownProfileTag is returned for any tag outside the enumerated sets.
var ErrUnknownProfileTag = errors.New("unknown profile tag")

type Resolution string

const (
	Res240p  Resolution = "240p"
	Res360p  Resolution = "360p"
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
)

type Quality string

const (
	QualityUltrafast Quality = "ultrafast"
	QualityFast      Quality = "fast"
	QualityMedium    Quality = "medium"
	QualitySlow      Quality = "slow"
	QualityVeryslow  Quality = "veryslow"
)

type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMKV  Format = "mkv"
	FormatAVI  Format = "avi"
	FormatWebM Format = "webm"
	FormatMOV  Format = "mov"
)

// Resolutions, Qualities and Formats list every tag, in menu order. Adding a tag
// means adding to the matching params table below; the catalog completeness test
// walks these slices.
var (
	Resolutions = []Resolution{Res240p, Res360p, Res480p, Res720p, Res1080p}
	Qualities   = []Quality{QualityUltrafast, QualityFast, QualityMedium, QualitySlow, QualityVeryslow}
	Formats     = []Format{FormatMP4, FormatMKV, FormatAVI, FormatWebM, FormatMOV}
)

// BatchResolutions is the "All" keyboard option, in delivery order.
var BatchResolutions = []Resolution{Res360p, Res480p, Res720p}

type ResolutionParams struct {
	ScaleFilter  string // -vf clause; width derived, height fixed, even
	VideoBitrate string // -b:v target
}

type QualityParams struct {
	Preset string
	CRF    int
}

type FormatParams struct {
	VideoCodec string
	AudioCodec string
	Extension  string
}

var resolutionTable = map[Resolution]ResolutionParams{
	Res240p:  {ScaleFilter: "scale=-2:240", VideoBitrate: "400k"},
	Res360p:  {ScaleFilter: "scale=-2:360", VideoBitrate: "700k"},
	Res480p:  {ScaleFilter: "scale=-2:480", VideoBitrate: "1200k"},
	Res720p:  {ScaleFilter: "scale=-2:720", VideoBitrate: "2500k"},
	Res1080p: {ScaleFilter: "scale=-2:1080", VideoBitrate: "5000k"},
}

var qualityTable = map[Quality]QualityParams{
	QualityUltrafast: {Preset: "ultrafast", CRF: 32},
	QualityFast:      {Preset: "fast", CRF: 28},
	QualityMedium:    {Preset: "medium", CRF: 26},
	QualitySlow:      {Preset: "slow", CRF: 24},
	QualityVeryslow:  {Preset: "veryslow", CRF: 22},
}

var formatTable = map[Format]FormatParams{
	FormatMP4:  {VideoCodec: "libx264", AudioCodec: "aac", Extension: "mp4"},
	FormatMKV:  {VideoCodec: "libx264", AudioCodec: "aac", Extension: "mkv"},
	FormatAVI:  {VideoCodec: "mpeg4", AudioCodec: "libmp3lame", Extension: "avi"},
	FormatWebM: {VideoCodec: "libvpx-vp9", AudioCodec: "libopus", Extension: "webm"},
	FormatMOV:  {VideoCodec: "libx264", AudioCodec: "aac", Extension: "mov"},
}

func ResolutionFor(tag Resolution) (ResolutionParams, error) {
	p, ok := resolutionTable[tag]
	if !ok {
		return ResolutionParams{}, fmt.Errorf("%w: resolution %q", ErrUnknownProfileTag, tag)
	}
	return p, nil
}

func QualityFor(tag Quality) (QualityParams, error) {
	p, ok := qualityTable[tag]
	if !ok {
		return QualityParams{}, fmt.Errorf("%w: quality %q", ErrUnknownProfileTag, tag)
	}
	return p, nil
}

func FormatFor(tag Format) (FormatParams, error) {
	p, ok := formatTable[tag]
	if !ok {
		return FormatParams{}, fmt.Errorf("%w: format %q", ErrUnknownProfileTag, tag)
	}
	return p, nil
}

// Profile is the (resolution, quality, format) triple governing one encode.
// Always built through New so unknown tags are rejected at the boundary.
type Profile struct {
	Resolution Resolution
	Quality    Quality
	Format     Format
}

func New(r Resolution, q Quality, f Format) (Profile, error) {
	if _, err := ResolutionFor(r); err != nil {
		return Profile{}, err
	}
	if _, err := QualityFor(q); err != nil {
		return Profile{}, err
	}
	if _, err := FormatFor(f); err != nil {
		return Profile{}, err
	}
	return Profile{Resolution: r, Quality: q, Format: f}, nil
}

// Batch builds an ordered profile list sharing one quality and format.
func Batch(resolutions []Resolution, q Quality, f Format) ([]Profile, error) {
	out := make([]Profile, 0, len(resolutions))
	for _, r := range resolutions {
		p, err := New(r, q, f)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p Profile) String() string {
	return fmt.Sprintf("%s/%s/%s", p.Resolution, p.Quality, p.Format)
}

// EstimateProcessingTime gives a rough wall-clock estimate in seconds for one
// encode, from the source duration and the chosen profile.
func EstimateProcessingTime(durationSec float64, r Resolution, q Quality) float64 {
	resMult := map[Resolution]float64{
		Res240p: 0.5, Res360p: 0.7, Res480p: 1.0, Res720p: 1.5, Res1080p: 2.5,
	}
	qualMult := map[Quality]float64{
		QualityUltrafast: 0.3, QualityFast: 0.7, QualityMedium: 1.0,
		QualitySlow: 1.8, QualityVeryslow: 3.0,
	}
	base, ok := resMult[r]
	if !ok {
		base = 1.0
	}
	qm, ok := qualMult[q]
	if !ok {
		qm = 1.0
	}
	return durationSec * base * qm
}
