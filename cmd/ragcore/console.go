package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ragcore/internal/modules/rag/application/service"
	"ragcore/internal/modules/rag/domain/document"
	"ragcore/pkg/zlog"

	"go.uber.org/zap"
)

// runConsole 标准输入上的运维控制台。没有对外 HTTP 面的情况下，
// 提供最小的人工入口：提交文档、删除文档、检索、问答。
func runConsole(ctx context.Context, ingest *service.AsyncIngestService, retrieval *service.RetrievalEngine, qa *service.QAService) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	fmt.Println("命令: ingest <文档id> <文件路径> | delete <文档id> | search <查询> | ask <问题> | quit")
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "quit", "exit":
			return

		case "ingest":
			docIDStr, path, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("用法: ingest <文档id> <文件路径>")
				continue
			}
			docID, err := strconv.ParseInt(docIDStr, 10, 64)
			if err != nil {
				fmt.Println("文档id必须是整数")
				continue
			}
			text, err := os.ReadFile(strings.TrimSpace(path))
			if err != nil {
				fmt.Printf("读取文件失败: %v\n", err)
				continue
			}
			err = ingest.EnqueueDocument(ctx, &document.Document{
				DocumentId: docID,
				Text:       string(text),
				CanChunk:   true,
			})
			if err != nil {
				fmt.Printf("提交失败: %v\n", err)
				continue
			}
			fmt.Printf("文档 %d 已提交入库\n", docID)

		case "delete":
			docID, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				fmt.Println("用法: delete <文档id>")
				continue
			}
			if err := ingest.EnqueueDelete(ctx, docID); err != nil {
				fmt.Printf("提交失败: %v\n", err)
				continue
			}
			fmt.Printf("文档 %d 已提交删除\n", docID)

		case "search":
			if rest == "" {
				fmt.Println("用法: search <查询>")
				continue
			}
			chunks := retrieval.Retrieve(ctx, rest, 0)
			if len(chunks) == 0 {
				fmt.Println("(无结果)")
				continue
			}
			for i, c := range chunks {
				preview := c.Content
				if runes := []rune(preview); len(runes) > 80 {
					preview = string(runes[:80]) + "..."
				}
				fmt.Printf("%d. [doc %d #%d] %s\n", i+1, c.DocumentId, c.ChunkIndex, preview)
			}

		case "ask":
			if rest == "" {
				fmt.Println("用法: ask <问题>")
				continue
			}
			if qa == nil {
				fmt.Println("对话模型未配置，无法问答")
				continue
			}
			answer := qa.AnswerQuestion(ctx, rest, 0)
			fmt.Println(answer.Answer)
			if len(answer.References) > 0 {
				fmt.Printf("(引用 %d 个片段)\n", len(answer.References))
			}

		default:
			fmt.Println("未知命令:", cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		zlog.Warn("控制台读取失败", zap.Error(err))
	}
}
