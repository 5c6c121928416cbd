package companies

import (
	"strings"
	"time"

	"github.com/ukboards/ukboards/internal/graph"
)

// DateFormat is the registry's date layout for appointments, resignations
// and control-statement cessations.
const DateFormat = "2006-01-02"

// Keys marking the end of a tie in registry records.
const (
	resignedKeyword = "resigned_on"
	ceasedKeyword   = "ceased_on"
)

// Corporate suffixes used to estimate whether a board member is a person.
var companySuffixes = []string{"LTD", "LIMITED", "LLC"}

// IsPerson estimates whether a board member or controller name belongs to a
// person rather than a company.
func IsPerson(name string) bool {
	for _, suffix := range companySuffixes {
		if strings.Contains(name, suffix) {
			return false
		}
	}
	return true
}

// IsIndividualControllerURL checks whether a controller's self link implies
// an individual rather than a corporate entity.
func IsIndividualControllerURL(url string) bool {
	return strings.Contains(url, "persons") && strings.Contains(url, "individual")
}

// isInactiveAt reports whether record carries keyword with a date strictly
// before now. An unparseable date counts as active.
func isInactiveAt(record map[string]interface{}, keyword string, now time.Time) bool {
	value, ok := record[keyword]
	if !ok {
		return false
	}
	text, ok := value.(string)
	if !ok {
		return false
	}
	date, err := time.Parse(DateFormat, text)
	if err != nil {
		return false
	}
	return date.Before(now)
}

// IsResigned reports whether an officer record shows a past resignation.
func IsResigned(record map[string]interface{}, now time.Time) bool {
	return isInactiveAt(record, resignedKeyword, now)
}

// IsCeased reports whether a controller record shows a past cessation.
func IsCeased(record map[string]interface{}, now time.Time) bool {
	return isInactiveAt(record, ceasedKeyword, now)
}

// FilterActiveBoardMembers returns a copy of g without person-side nodes
// whose board record shows a resignation or cessation before now.
// Organisation-side nodes are never removed.
func FilterActiveBoardMembers(g *graph.Graph, now time.Time) *graph.Graph {
	out := g.Copy()
	for _, node := range out.Nodes() {
		if node.Bipartite != graph.SidePerson {
			continue
		}
		board, ok := node.Data["board"].(map[string]interface{})
		if !ok {
			continue
		}
		if isInactiveAt(board, resignedKeyword, now) || isInactiveAt(board, ceasedKeyword, now) {
			out.RemoveNode(node.ID)
		}
	}
	return out
}
