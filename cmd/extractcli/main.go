package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/processor"
)

// 命令行参数定义
var (
	inputFile  = flag.String("file", "", "简历文件路径，支持PDF和纯文本 (必填)")
	configPath = flag.String("config", "", "配置文件路径，默认自动查找")
	outputFile = flag.String("out", "", "输出文件路径，默认输出到stdout")
	textOnly   = flag.Bool("text-only", false, "仅做文本解析，不调用LLM提取")
	verbose    = flag.Bool("v", false, "输出调试日志")
	timeout    = flag.Duration("timeout", 5*time.Minute, "整体处理超时")
)

func main() {
	flag.Parse()

	if *inputFile == "" {
		fmt.Println("错误: 必须提供简历文件路径。使用 -file 参数。")
		flag.Usage()
		os.Exit(1)
	}

	logLevel := zerolog.WarnLevel
	if *verbose {
		logLevel = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(logLevel).
		With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	text, err := loadSourceText(ctx, cfg, &logger, *inputFile)
	if err != nil {
		fmt.Printf("解析文件失败: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Println("错误: 解析出的文本为空")
		os.Exit(1)
	}

	if *textOnly {
		writeOutput([]byte(text))
		return
	}

	if cfg.Aliyun.APIKey == "" {
		fmt.Println("错误: 未配置aliyun.api_key，无法执行章节提取。可用 -text-only 仅解析文本。")
		os.Exit(1)
	}

	engine, err := processor.NewExtractionEngine(cfg, &logger)
	if err != nil {
		fmt.Printf("创建抽取引擎失败: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	result := engine.ExtractDocument(ctx, text)
	logger.Info().Dur("elapsed", time.Since(start)).Msg("章节提取完成")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("序列化结果失败: %v\n", err)
		os.Exit(1)
	}
	writeOutput(data)
}

// loadSourceText 读取输入文件，PDF走配置的解析器，其余按纯文本处理
func loadSourceText(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("无法获取文件的绝对路径: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}

	if strings.ToLower(filepath.Ext(absPath)) != ".pdf" {
		return string(data), nil
	}

	pdfExtractor, err := processor.NewPDFExtractor(ctx, cfg, logger)
	if err != nil {
		return "", fmt.Errorf("创建PDF提取器失败: %w", err)
	}
	text, _, err := pdfExtractor.ExtractTextFromReader(ctx, bytes.NewReader(data), absPath, nil)
	if err != nil {
		return "", err
	}
	return text, nil
}

func writeOutput(data []byte) {
	if *outputFile == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*outputFile, data, 0644); err != nil {
		fmt.Printf("写入输出文件失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("结果已写入: %s\n", *outputFile)
}
