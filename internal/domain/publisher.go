package domain

import "encoding/json"

// Publisher identifies an account whose posts the classifier understands.
type Publisher int

const (
	PublisherUnknown Publisher = iota
	PublisherYurekuru
	PublisherEarthquakeJP
)

// FilterTag groups the stream rules registered for all publishers.
const FilterTag = "earthquake"

var publisherAccounts = map[Publisher]string{
	PublisherYurekuru:     "yurekuru",
	PublisherEarthquakeJP: "earthquake_jp",
}

// Publishers returns every recognized publisher in a stable order.
func Publishers() []Publisher {
	return []Publisher{PublisherYurekuru, PublisherEarthquakeJP}
}

// ParsePublisher maps an account name to its publisher. Matching is exact;
// any other name is PublisherUnknown.
func ParsePublisher(account string) Publisher {
	for p, name := range publisherAccounts {
		if name == account {
			return p
		}
	}
	return PublisherUnknown
}

// Account returns the account name, or "" for PublisherUnknown.
func (p Publisher) Account() string {
	return publisherAccounts[p]
}

// FilterRule returns the stream rule that selects posts from this publisher.
func (p Publisher) FilterRule() string {
	if p.Account() == "" {
		return ""
	}
	return "from:" + p.Account()
}

func (p Publisher) String() string {
	if name := p.Account(); name != "" {
		return name
	}
	return "unknown"
}

func (p Publisher) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}
