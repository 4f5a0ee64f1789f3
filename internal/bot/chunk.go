package bot

const messageChunkSize = 1900

// splitMessage slices text into Discord-sized chunks on rune boundaries.
// The split is lossless: concatenating the chunks reproduces the input
// exactly, so code blocks and long agent output survive the size limit.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = messageChunkSize
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
