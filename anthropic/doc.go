// Package anthropic is a typed client for the Anthropic Messages API with a
// stateful Conversation helper for multi-turn dialogue and tool use loops.
//
// The Conversation type holds the entire conversation state as plain data,
// tracks tool uses awaiting results, and drives the send/resolve cycle
// against any Sender: the HTTP Client or the AWS Bedrock backend.
package anthropic
