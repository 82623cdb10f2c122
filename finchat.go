// Package finchat answers natural-language questions about portfolio
// holdings and trades.
//
// Usage:
//
//	import (
//	    "github.com/spektr-org/finchat/chatbot"
//	    "github.com/spektr-org/finchat/session"
//	    "github.com/spektr-org/finchat/translator"
//	)
//
//	sess, err := session.Prepare(holdings, trades, session.DefaultOptions())
//	gen, err := translator.New(ctx, translator.DefaultConfig(apiKey))
//	bot := chatbot.New(sess, gen)
//	ans, err := bot.Ask(ctx, "What is the total quantity for Garfield on 04-03-2020?")
//
// A language model turns each question into a short program in a small query
// language. The program runs locally against read-only views of the prepared
// tables, bounded by a timeout and a step budget, and the result is formatted
// for display.
//
// Only the schema (dataset and column names with their kinds) is sent to the
// model. Rows never leave the process.
package finchat
