package adapters

// SSE wire framing for streaming output to the end client.
// Each frame is "data: <json>\n\n"; event-framed providers (Anthropic)
// prepend an "event: <type>" line. Streams terminate with a literal
// "data: [DONE]" frame.

const sseDone = "data: [DONE]\n\n"

func formatSSE(data string) string {
	return "data: " + data + "\n\n"
}

func formatEventSSE(event, data string) string {
	return "event: " + event + "\ndata: " + data + "\n\n"
}
