package arr

// Quality profile ids shared by both services' default setups.
var qualityProfiles = map[int]string{
	2: "SD",
	3: "720p",
	4: "1080p",
	5: "2160p",
	6: "720p/1080p",
	7: "Any",
}

// DefaultQualityProfileID is used when the user does not name a
// quality. Profile 4 is 1080p.
const DefaultQualityProfileID = 4

// QualityName maps a profile id to its display name.
func QualityName(id int) (string, bool) {
	name, ok := qualityProfiles[id]
	return name, ok
}

// QualityProfileID maps a display name back to a profile id. Unknown
// or empty names fall back to the default.
func QualityProfileID(name string) int {
	for id, n := range qualityProfiles {
		if n == name {
			return id
		}
	}
	return DefaultQualityProfileID
}
