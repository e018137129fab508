package agents

import "hash/fnv"

// stationNames is the pool of display names handed to unnamed debaters.
var stationNames = []string{
	"Ome", "Gora", "Maji", "Ueno", "Ebisu",
	"Osaki", "Otaru", "Namba", "Tenma", "Mejiro",
	"Koenji", "Gotanda", "Ryogoku", "Yutenji", "Nippori",
	"Asagaya", "Mojiko", "Taisho", "Yumoto", "Harajuku",
	"Odawara", "Enoshima", "Ogikubo", "Ichigaya", "Komazawa",
	"Wakkanai", "Todoroki", "Naruto", "Zushi", "Fussa",
	"Nikko", "Hakone", "Beppu", "Atami", "Ginza",
	"Kamakura", "Nagasaki", "Sapporo", "Omiya", "Kawagoe",
}

// DisplayName returns a stable, distinct-within-session name for the agent at index.
// Indexes past the pool size wrap around.
func DisplayName(sessionID string, index int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return stationNames[(int(h.Sum32()%uint32(len(stationNames)))+index)%len(stationNames)]
}
