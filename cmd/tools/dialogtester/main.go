package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-invoice/backend/internal/config"
	"github.com/zhouzirui/z-invoice/backend/internal/logging"
	dialogmodel "github.com/zhouzirui/z-invoice/backend/internal/model/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/model/invoice"
	"github.com/zhouzirui/z-invoice/backend/internal/service/dialog"
	"github.com/zhouzirui/z-invoice/backend/internal/service/generation"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		session string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "dialogtester",
		Short: "在终端里逐轮测试发票对话",
		Long:  "从标准输入逐行读取转写文本，使用真实模型驱动对话控制器并打印每一轮结果。",
		RunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("配置加载失败: %w", err)
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger := logging.New(nil, level)
			if envErr != nil {
				logger.Debug().Err(envErr).Msg("无法加载 .env，改用系统环境变量")
			}

			ctx := cmd.Context()
			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				return fmt.Errorf("模型初始化失败，请检查 AI_* 环境变量: %w", err)
			}

			client, err := generation.NewChainClient(ctx, chatModel, generation.PromptOptions{
				Defaults: invoice.Defaults{
					Terms:             cfg.Invoice.Terms,
					ContractorLicense: cfg.Invoice.ContractorLicense,
					Warranty:          cfg.Invoice.Warranty,
					PaymentMethods:    cfg.Invoice.PaymentMethods,
				},
				TaxRateHint: cfg.Invoice.TaxRateHint,
			}, logger.Sub("generation"))
			if err != nil {
				return fmt.Errorf("生成客户端初始化失败: %w", err)
			}

			genTimeout := cfg.Dialog.GenerationTimeout
			if timeout > 0 {
				genTimeout = timeout
			}
			controller := dialog.NewController(client, dialogmodel.NewMemoryStore(), dialog.Options{
				GenerationTimeout: genTimeout,
				LockWait:          time.Second,
				Logger:            logger.Sub("dialog"),
			})

			return run(ctx, controller, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&session, "session", "", "自定义 sessionID，留空则自动生成")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "单次模型调用超时，默认使用 DIALOG_GENERATION_TIMEOUT")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "输出调试日志")
	return cmd
}

// run 逐行读取转写文本并打印每一轮的结果
func run(ctx context.Context, controller *dialog.Controller, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "请输入工作描述，每行一次提交 (Ctrl-D 结束):")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		start := time.Now()
		outcome := controller.ProcessTurn(ctx, sessionID, line)
		elapsed := time.Since(start).Round(time.Millisecond)

		switch o := outcome.(type) {
		case *dialog.NeedsInput:
			sessionID = o.SessionKey
			fmt.Fprintf(out, "[%s] 问题 %d/%d: %s\n", elapsed, o.QuestionNumber, o.TotalQuestions, o.Question)
		case *dialog.InvoiceReady:
			sessionID = ""
			raw, err := json.MarshalIndent(o.Invoice, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "[%s] 发票已生成:\n%s\n", elapsed, raw)
		case *dialog.Failed:
			sessionID = o.SessionKey
			fmt.Fprintf(out, "[%s] 失败 (%s): %s\n", elapsed, o.Kind, o.Reason)
		}
	}
	return scanner.Err()
}
