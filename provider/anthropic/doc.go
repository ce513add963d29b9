/*
Package anthropic implements the provider.Adapter contract for the Anthropic
messages API.

System messages are lifted into the system prompt, tool results travel as user
content blocks and consecutive turns of the same role are merged, since the
messages API requires alternating roles.

Reasoning is exposed as thinking blocks. Signed thinking and redacted thinking
received from the model are replayed verbatim on the next turn. A reasoning
budget or effort enables extended thinking, which removes temperature and top_p
from the request.

Responses and stream events are decoded with the anthropic-sdk-go types.
Structured output formats and audio input are rejected with a serialization error.
*/
package anthropic
