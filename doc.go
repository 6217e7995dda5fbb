/*
Package relay answers user messages by running them through an orchestration
graph of specialized agents and persisting the conversation between turns.

Every turn enters the router, which picks one processing path:

  - knowledge: query the internal document index, grade the results and, when
    too little is relevant, fall back to a single web search.
  - summarize: split a submitted document into chunks, summarize them in
    parallel and reduce the partial summaries in chunk order.
  - quick_answer: reply directly from the conversation.

The synthesizer merges whatever the path produced into the final answer. Long
conversations are compacted into a running summary once the turn is answered.
Failures never leave the user without a reply: they degrade the turn, and the
answer says that information may be incomplete.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/relay"
		"github.com/aretw0/relay/pkg/adapters/openai"
	)

	func main() {
		model := openai.New(func(o *openai.Options) { o.APIKey = "..." })
		r, err := relay.New(relay.WithCompleter(model))
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		thread, err := r.NewThread(ctx)
		if err != nil {
			log.Fatal(err)
		}

		answer, err := r.SubmitTurn(ctx, thread, "What is the refund policy?")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(answer.Text)
	}

Turns of the same thread are serialized. Checkpoints are written through the
configured ports.CheckpointStore before SubmitTurn returns.
*/
package relay
