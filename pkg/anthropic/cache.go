package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The cross-check system instruction is identical for every item
// of a run, so a 5-minute TTL covers a whole invocation.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
