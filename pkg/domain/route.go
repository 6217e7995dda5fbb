package domain

// Route is the processing path selected by the router for a turn.
type Route string

const (
	RouteNone        Route = ""
	RouteKnowledge   Route = "knowledge"
	RouteSummarize   Route = "summarize"
	RouteQuickAnswer Route = "quick_answer"
	RouteSynthesize  Route = "synthesize"
	RouteEnd         Route = "end"
)

// Valid reports whether r is one of the known routes.
func (r Route) Valid() bool {
	switch r {
	case RouteKnowledge, RouteSummarize, RouteQuickAnswer, RouteSynthesize, RouteEnd:
		return true
	}
	return false
}

// Node returns the graph node that handles the route.
func (r Route) Node() string {
	switch r {
	case RouteKnowledge:
		return NodeKnowledge
	case RouteSummarize:
		return NodeSummarize
	case RouteQuickAnswer:
		return NodeQuickAnswer
	case RouteSynthesize:
		return NodeSynthesize
	case RouteEnd:
		return NodeEnd
	}
	return ""
}
