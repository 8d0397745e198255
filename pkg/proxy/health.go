package proxy

// Stats are the health counters of one endpoint.
type Stats struct {
	Usage    int `json:"usage_count" yaml:"usage_count"`
	Failures int `json:"failure_count" yaml:"failure_count"`
}

// healthTable tracks counters by endpoint identity. Missing entries read as
// zero.
type healthTable struct {
	usage    map[string]int
	failures map[string]int
}

func newHealthTable() *healthTable {
	return &healthTable{
		usage:    make(map[string]int),
		failures: make(map[string]int),
	}
}

func (h *healthTable) healthy(e Endpoint, ceiling int) bool {
	return h.failures[e.Key()] < ceiling
}

func (h *healthTable) use(e Endpoint) {
	h.usage[e.Key()]++
}

func (h *healthTable) fail(e Endpoint) {
	h.failures[e.Key()]++
}

func (h *healthTable) recover(e Endpoint) {
	h.failures[e.Key()] = 0
}

func (h *healthTable) clearFailures() {
	h.failures = make(map[string]int)
}

func (h *healthTable) reset() {
	h.usage = make(map[string]int)
	h.failures = make(map[string]int)
}

func (h *healthTable) stats(e Endpoint) Stats {
	return Stats{Usage: h.usage[e.Key()], Failures: h.failures[e.Key()]}
}
