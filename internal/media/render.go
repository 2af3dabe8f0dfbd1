package media

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/arr"
)

// humanSize renders a byte count in binary units, e.g. 1536 -> "1.5KiB".
func humanSize(n float64) string {
	for _, unit := range []string{"", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi"} {
		if n < 1024 && n > -1024 {
			return fmt.Sprintf("%.1f%sB", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%.1fYiB", n)
}

func recStr(r arr.Record, key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

func recNum(r arr.Record, key string) (float64, bool) {
	v, ok := r[key].(float64)
	return v, ok
}

func recBool(r arr.Record, key string) bool {
	v, _ := r[key].(bool)
	return v
}

// recID returns the server-side id, which is 0 or absent for media not
// yet added.
func recID(r arr.Record) int64 {
	v, _ := recNum(r, "id")
	return int64(v)
}

func recStrings(r arr.Record, key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func recTagIDs(r arr.Record) []int64 {
	raw, ok := r["tags"].([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		if n, ok := v.(float64); ok {
			out = append(out, int64(n))
		}
	}
	return out
}

// describeRecord flattens one lookup result into a semicolon-joined
// plain-english line for the parser model. tagLabels maps tag ids to
// labels so attribution tags show who requested the item.
func describeRecord(service arr.Service, r arr.Record, tagLabels map[int64]string) string {
	var parts []string

	if title, ok := recStr(r, "title"); ok {
		parts = append(parts, title)
	}
	status, _ := recStr(r, "status")
	year, _ := recNum(r, "year")
	parts = append(parts, fmt.Sprintf("status %s year %d", status, int(year)))

	if id := recID(r); id != 0 {
		parts = append(parts, "available on the server", fmt.Sprintf("id %d", id))
	} else {
		parts = append(parts, "unavailable on the server")
	}

	if qp, ok := recNum(r, "qualityProfileId"); ok {
		if name, known := arr.QualityName(int(qp)); known {
			parts = append(parts, "quality wanted "+name)
		}
	}

	if service == arr.Sonarr {
		if tvdb, ok := recNum(r, "tvdbId"); ok {
			parts = append(parts, fmt.Sprintf("tvdbId %d", int64(tvdb)))
		}
	} else {
		if tmdb, ok := recNum(r, "tmdbId"); ok {
			parts = append(parts, fmt.Sprintf("tmdbId %d", int64(tmdb)))
		}
	}

	if recBool(r, "hasFile") {
		if size, ok := recNum(r, "sizeOnDisk"); ok {
			parts = append(parts, "file size "+humanSize(size))
		}
	} else if service == arr.Radarr {
		parts = append(parts, "no file on disk")
	}

	if runtime, ok := recNum(r, "runtime"); ok {
		parts = append(parts, fmt.Sprintf("runtime %d minutes", int(runtime)))
	}
	if airTime, ok := recStr(r, "airTime"); ok {
		parts = append(parts, "airTime "+airTime)
	}
	if network, ok := recStr(r, "network"); ok {
		parts = append(parts, "network "+network)
	}
	if cert, ok := recStr(r, "certification"); ok {
		parts = append(parts, "certification "+cert)
	}
	if genres := recStrings(r, "genres"); len(genres) > 0 {
		parts = append(parts, "genres "+strings.Join(genres, ", "))
	}
	if studio, ok := recStr(r, "studio"); ok {
		parts = append(parts, "studio "+studio)
	}

	if ratings, ok := r["ratings"].(map[string]any); ok {
		sites := make([]string, 0, len(ratings))
		for site := range ratings {
			sites = append(sites, site)
		}
		sort.Strings(sites)
		var rendered []string
		for _, site := range sites {
			detail, ok := ratings[site].(map[string]any)
			if !ok {
				continue
			}
			value, _ := detail["value"].(float64)
			votes, _ := detail["votes"].(float64)
			rendered = append(rendered, fmt.Sprintf("%s rated %g with %d votes", site, value, int(votes)))
		}
		if len(rendered) > 0 {
			parts = append(parts, "ratings "+strings.Join(rendered, ", "))
		}
	}

	if len(tagLabels) > 0 {
		var requesters []string
		for _, id := range recTagIDs(r) {
			label := tagLabels[id]
			if name, ok := strings.CutPrefix(label, arr.UserTagPrefix); ok {
				requesters = append(requesters, name)
			}
		}
		if len(requesters) > 0 {
			sort.Strings(requesters)
			parts = append(parts, "requested by "+strings.Join(requesters, ", "))
		}
	}

	return strings.Join(parts, ";")
}
