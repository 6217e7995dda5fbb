/*
Package dsl provides a fluent builder for relay orchestration graphs.

Nodes are declared with their function, their write contract and their
outgoing edges; Build validates the result so that unknown route targets or
missing nodes surface before the first turn runs.

Example usage:

	b := dsl.New().Entry("router").Fallback("answer")

	b.Add("router").
		Do(route).
		Writes(domain.FieldRoute).
		Route(pick, "lookup", "answer")

	b.Add("lookup").
		Do(lookup).
		Writes(domain.FieldQuery, domain.FieldRetrieved).
		Go("answer")

	b.Add("answer").
		Do(answer).
		Writes(domain.FieldAnswer).
		Checkpoint().
		Finalizer().
		Terminal()

	graph, err := b.Build()
*/
package dsl
