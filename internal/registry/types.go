package registry

// Release describes one finished image build being announced.
type Release struct {
	Name        string
	Tag         string
	Ref         string
	Description string
}

// Publisher defines the interface for announcing finished image builds to an
// external registry or SCM host.
type Publisher interface {
	Publish(project string, release Release) error
}
