package service

import (
	"regexp"
	"strings"
	"unicode"
)

var tokenSplitRe = regexp.MustCompile(`[\s\p{P}]+`)

// KeywordExtractor 从查询中提取用于全文过滤的关键词集合。
// 中文词没有空格边界，对含汉字的词补充 2-3 字的连续子串，
// 提升对"报销流程"这类复合词的召回。
type KeywordExtractor struct {
	stopWords     map[string]struct{}
	enableCJKGram bool
}

func NewKeywordExtractor(stopWords []string, enableCJKGram bool) *KeywordExtractor {
	set := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		w = strings.TrimSpace(w)
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &KeywordExtractor{stopWords: set, enableCJKGram: enableCJKGram}
}

// Extract 返回去重后的关键词集合。单字词与停用词被丢弃；
// 查询全部由停用词构成时返回空集合，调用方应跳过关键词过滤。
func (k *KeywordExtractor) Extract(query string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, token := range tokenSplitRe.Split(query, -1) {
		token = strings.TrimSpace(token)
		runes := []rune(token)
		if len(runes) <= 1 {
			continue
		}
		if _, stop := k.stopWords[token]; stop {
			continue
		}
		keywords[token] = struct{}{}

		if k.enableCJKGram && containsHan(runes) {
			// 每个起点取 3 字窗口，词尾不足 3 字时退到 2 字
			for i := 0; i <= len(runes)-2; i++ {
				end := i + 3
				if end > len(runes) {
					end = len(runes)
				}
				gram := string(runes[i:end])
				if _, stop := k.stopWords[gram]; stop {
					continue
				}
				keywords[gram] = struct{}{}
			}
		}
	}
	return keywords
}

// MatchCount 统计内容命中的关键词个数，大小写不敏感的整串包含匹配
func (k *KeywordExtractor) MatchCount(content string, keywords map[string]struct{}) int {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	count := 0
	for kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			count++
		}
	}
	return count
}

// Matches 内容是否命中任一关键词；关键词集合为空视为命中（不过滤）
func (k *KeywordExtractor) Matches(content string, keywords map[string]struct{}) bool {
	if len(keywords) == 0 {
		return true
	}
	return k.MatchCount(content, keywords) > 0
}

func containsHan(runes []rune) bool {
	for _, r := range runes {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
