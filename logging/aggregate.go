package logging

import (
	"github.com/sirupsen/logrus"
	es "github.com/terraskye/formations"
)

// AggregateFields describes an aggregate for structured log entries.
func AggregateFields(agg es.Aggregate) logrus.Fields {
	pending := agg.UncommittedEvents()
	kinds := make([]string, len(pending))
	for i, ev := range pending {
		kinds[i] = string(ev.Kind())
	}
	return logrus.Fields{
		"aggregateId": agg.AggregateID(),
		"version":     agg.AggregateVersion(),
		"pending":     kinds,
	}
}
