package extract

// systemPrompt instructs the model to return a single JSON object.
const systemPrompt = `You analyze conversations between a user and an AI assistant and extract the main topics discussed.

For each distinct topic:
1. Give a clear, concise title of at most 50 characters.
2. Write a brief summary of at most 150 characters.
3. Give the approximate character positions where the topic starts and ends in the conversation.

Topics must not overlap. Positions are zero-based character offsets into the conversation text.

Respond with one JSON object and nothing else, using exactly this structure:
{
  "topics": [
    {
      "title": "Topic Title",
      "summary": "Brief summary of what was discussed",
      "position_start": 0,
      "position_end": 500
    }
  ],
  "conversation_summary": "Overall summary of the entire conversation"
}`
