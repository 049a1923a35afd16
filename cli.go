package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile   string
	logger    *zap.Logger
	appConfig *Config
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "fxesim",
	Short: "頻率相位計數器報文工具",
	Long: `接收並解碼頻率/相位計數器的二進位測量報文串流，
亦可在單機模擬一整批計數器供接收端壓力測試。`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 初始化日誌
		var err error
		logger, err = initLogger()
		if err != nil {
			return fmt.Errorf("初始化日誌失敗: %w", err)
		}

		// 載入配置 (除了 version 和 help 命令)
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "generate" {
			appConfig, err = LoadConfig(cfgFile)
			if err != nil {
				// 配置載入失敗時使用預設值
				appConfig = DefaultConfig()
				if cfgFile != "" {
					logger.Warn("載入配置檔失敗，使用預設配置", zap.Error(err))
				}
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// listenCmd 接收命令
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "連線計數器並解碼報文串流",
	Long:  "連線指定的計數器，持續接收報文並逐行輸出解碼結果，連線中斷時自動重連。",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 覆蓋 CLI 參數
		if addr, _ := cmd.Flags().GetString("address"); addr != "" {
			appConfig.Device.Address = addr
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			appConfig.Device.Port = port
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			appConfig.Decode.Debug = true
		}

		addr := fmt.Sprintf("%s:%d", appConfig.Device.Address, appConfig.Device.Port)
		logger.Info("連線計數器",
			zap.String("addr", addr),
			zap.Bool("debug", appConfig.Decode.Debug),
		)

		out, closeOut, err := openOutput(appConfig.Decode.OutputPath)
		if err != nil {
			return err
		}
		defer closeOut()

		opts := []ReceiverOption{
			WithReceiverOutput(out),
			WithReceiverLogger(logger),
		}
		if appConfig.Decode.Debug {
			opts = append(opts, WithDebugOutput(true))
		}

		receiver := NewReceiver(addr, appConfig, opts...)

		// 啟動指標收集器
		if appConfig.Metrics.Enabled {
			metrics := NewMetricsCollector(nil, receiver, logger)
			if err := metrics.Start(appConfig.Metrics.Endpoint, appConfig.Metrics.Port); err != nil {
				logger.Warn("啟動指標伺服器失敗", zap.Error(err))
			}
		}

		// 設置優雅關閉
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			logger.Info("收到關閉信號", zap.String("signal", sig.String()))
			cancel()
		}()

		if err := receiver.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("接收器異常結束: %w", err)
		}

		stats := receiver.Stats()
		logger.Info("接收器已停止",
			zap.Uint64("frames", stats.FramesReceived.Load()),
			zap.Uint64("reconnects", stats.Reconnects.Load()),
		)
		return nil
	},
}

// decodeCmd 解碼命令
var decodeCmd = &cobra.Command{
	Use:   "decode [capture-file]",
	Short: "解碼擷取檔",
	Long:  "解碼由連續報文組成的擷取檔，逐份報文輸出解碼結果。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			appConfig.Decode.Debug = true
		}
		if sep, _ := cmd.Flags().GetString("separator"); sep != "" {
			appConfig.Decode.DecimalSeparator = sep
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("開啟擷取檔失敗: %w", err)
		}
		defer f.Close()

		out, closeOut, err := openOutput(appConfig.Decode.OutputPath)
		if err != nil {
			return err
		}
		defer closeOut()

		count, err := DecodeCapture(f, out, appConfig.Decode.Separator(), appConfig.Decode.Debug)
		if err != nil {
			return err
		}

		logger.Info("擷取檔解碼完成",
			zap.String("file", args[0]),
			zap.Int("frames", count),
		)
		return nil
	},
}

// simulateCmd 模擬命令
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "啟動模擬計數器機隊",
	Long:  "啟動一批模擬計數器，各自監聽 TCP 連線並依測量間隔廣播報文。",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 覆蓋 CLI 參數
		if ip, _ := cmd.Flags().GetString("ip"); ip != "" {
			appConfig.Network.IPRanges = []IPRange{{Start: ip, End: ip}}
		}
		if count, _ := cmd.Flags().GetInt("count"); count > 0 {
			appConfig.Simulator.Count = count
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			appConfig.Simulator.Port = port
		}
		if profile, _ := cmd.Flags().GetString("profile"); profile != "" {
			appConfig.Simulator.DefaultProfile = profile
		}

		logger.Info("啟動模擬計數器",
			zap.Int("port", appConfig.Simulator.Port),
			zap.Int("count", appConfig.Simulator.Count),
			zap.String("profile", appConfig.Simulator.DefaultProfile),
		)

		// 建立引擎
		engine := NewEngine(appConfig, logger)

		// 設置優雅關閉
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// 啟動引擎
		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("啟動引擎失敗: %w", err)
		}

		// 啟動指標收集器
		if appConfig.Metrics.Enabled {
			metrics := NewMetricsCollector(engine, nil, logger)
			if err := metrics.Start(appConfig.Metrics.Endpoint, appConfig.Metrics.Port); err != nil {
				logger.Warn("啟動指標伺服器失敗", zap.Error(err))
			} else {
				logger.Info("指標伺服器已啟動",
					zap.Int("port", appConfig.Metrics.Port),
					zap.String("endpoint", appConfig.Metrics.Endpoint),
				)
			}
		}

		// 等待信號
		sig := <-sigChan
		logger.Info("收到關閉信號", zap.String("signal", sig.String()))

		// 優雅關閉
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := engine.Stop(shutdownCtx); err != nil {
			logger.Error("關閉引擎失敗", zap.Error(err))
			return err
		}

		logger.Info("模擬器已停止")
		return nil
	},
}

// networkCmd 網路命令組
var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "網路管理命令",
	Long:  "管理模擬機隊的虛擬 IP 配置。",
}

// networkSetupCmd 設置網路
var networkSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "建立虛擬 IP",
	Long:  "在指定的網路介面上建立虛擬 IP 位址。",
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, _ := cmd.Flags().GetString("interface")
		if iface != "" {
			appConfig.Network.Interface = iface
		}

		startIP, _ := cmd.Flags().GetString("start")
		endIP, _ := cmd.Flags().GetString("end")
		cidr, _ := cmd.Flags().GetString("cidr")

		if cidr != "" {
			appConfig.Network.IPRanges = []IPRange{{CIDR: cidr}}
		} else if startIP != "" && endIP != "" {
			appConfig.Network.IPRanges = []IPRange{{Start: startIP, End: endIP}}
		}

		provisioner := NewNetworkProvisioner(appConfig.Network.Interface, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := provisioner.Setup(ctx, appConfig.Network.IPRanges); err != nil {
			return fmt.Errorf("設置網路失敗: %w", err)
		}

		fmt.Println("虛擬 IP 設置完成")
		return nil
	},
}

// networkTeardownCmd 移除網路
var networkTeardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "移除虛擬 IP",
	Long:  "移除已配置的虛擬 IP 位址。",
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, _ := cmd.Flags().GetString("interface")
		if iface != "" {
			appConfig.Network.Interface = iface
		}

		provisioner := NewNetworkProvisioner(appConfig.Network.Interface, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := provisioner.Teardown(ctx); err != nil {
			return fmt.Errorf("移除網路失敗: %w", err)
		}

		fmt.Println("虛擬 IP 已移除")
		return nil
	},
}

// networkListCmd 列出網路
var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已配置 IP",
	Long:  "列出目前已配置的虛擬 IP 位址。",
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, _ := cmd.Flags().GetString("interface")
		if iface != "" {
			appConfig.Network.Interface = iface
		}

		provisioner := NewNetworkProvisioner(appConfig.Network.Interface, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		addrs, err := provisioner.List(ctx)
		if err != nil {
			return fmt.Errorf("列出 IP 失敗: %w", err)
		}

		if len(addrs) == 0 {
			fmt.Println("目前沒有配置虛擬 IP")
			return nil
		}

		fmt.Printf("已配置的虛擬 IP (%d 個):\n", len(addrs))
		for _, addr := range addrs {
			fmt.Printf("  - %s\n", addr.String())
		}
		return nil
	},
}

// profileCmd 情境命令組
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "情境管理命令",
	Long:  "管理模擬情境。",
}

// profileListCmd 列出情境
var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出可用情境",
	Long:  "列出所有可用的模擬情境。",
	Run: func(cmd *cobra.Command, args []string) {
		profiles := []struct {
			Name        string
			Description string
		}{
			{"steady", "穩定測量 (相位雜訊 ±0.5 ppb)"},
			{"drift", "頻率老化 (每測量間隔 +0.1 ppb)"},
			{"glitch", "偶發錯誤報文與畸形長度報文"},
			{"chatter", "定期夾帶時間戳與心跳訊息"},
		}

		fmt.Println("可用的模擬情境:")
		for _, p := range profiles {
			fmt.Printf("  %-15s %s\n", p.Name, p.Description)
		}
	},
}

// configCmd 配置命令組
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "配置管理命令",
	Long:  "管理配置檔。",
}

// configValidateCmd 驗證配置
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "驗證配置檔",
	Long:  "驗證指定的配置檔是否有效。",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}

		fmt.Println("配置驗證通過")
		fmt.Printf("  Device: %s:%d\n", cfg.Device.Address, cfg.Device.Port)
		fmt.Printf("  Transmitters: %d\n", cfg.Simulator.Count)
		fmt.Printf("  Channels: %d\n", cfg.Simulator.Channels)
		fmt.Printf("  Interface: %s\n", cfg.Network.Interface)
		fmt.Printf("  IP Ranges: %d\n", len(cfg.Network.IPRanges))
		return nil
	},
}

// configGenerateCmd 生成配置
var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "生成範例配置",
	Long:  "生成範例配置檔。",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = "config.json"
		}

		cfg := DefaultConfig()

		// 添加範例 IP 範圍
		cfg.Network.IPRanges = []IPRange{
			{Start: "192.168.1.101", End: "192.168.1.200"},
		}

		if err := cfg.SaveConfig(output); err != nil {
			return fmt.Errorf("生成配置失敗: %w", err)
		}

		fmt.Printf("範例配置已生成: %s\n", output)
		return nil
	},
}

// versionCmd 版本命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "顯示版本資訊",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fxesim version %s\n", Version)
		fmt.Printf("  Build: %s\n", BuildTime)
		fmt.Printf("  Commit: %s\n", GitCommit)
	},
}

func init() {
	// 全域 flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置檔路徑")

	// listen 命令 flags
	listenCmd.Flags().StringP("address", "a", "", "計數器位址")
	listenCmd.Flags().IntP("port", "p", 0, "計數器埠號")
	listenCmd.Flags().Bool("debug", false, "輸出除錯格式")

	// decode 命令 flags
	decodeCmd.Flags().Bool("debug", false, "輸出除錯格式")
	decodeCmd.Flags().String("separator", "", "相位小數分隔符 (. 或 ,)")

	// simulate 命令 flags
	simulateCmd.Flags().StringP("ip", "i", "", "綁定 IP 位址")
	simulateCmd.Flags().IntP("count", "n", 0, "模擬計數器數量")
	simulateCmd.Flags().IntP("port", "p", 0, "監聽埠號")
	simulateCmd.Flags().String("profile", "", "初始情境")

	// network 命令 flags
	networkSetupCmd.Flags().StringP("interface", "i", "eth0", "網路介面")
	networkSetupCmd.Flags().String("start", "", "起始 IP")
	networkSetupCmd.Flags().String("end", "", "結束 IP")
	networkSetupCmd.Flags().String("cidr", "", "CIDR 表示法")

	networkTeardownCmd.Flags().StringP("interface", "i", "eth0", "網路介面")
	networkListCmd.Flags().StringP("interface", "i", "eth0", "網路介面")

	// config 命令 flags
	configGenerateCmd.Flags().StringP("output", "o", "config.json", "輸出檔案路徑")

	// 組裝命令樹
	networkCmd.AddCommand(networkSetupCmd, networkTeardownCmd, networkListCmd)
	profileCmd.AddCommand(profileListCmd)
	configCmd.AddCommand(configValidateCmd, configGenerateCmd)

	rootCmd.AddCommand(
		listenCmd,
		decodeCmd,
		simulateCmd,
		networkCmd,
		profileCmd,
		configCmd,
		versionCmd,
	)
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// openOutput 開啟解碼輸出目的地
func openOutput(path string) (*bufio.Writer, func(), error) {
	if path == "" || path == "stdout" {
		w := bufio.NewWriter(os.Stdout)
		return w, func() { w.Flush() }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("開啟輸出檔失敗: %w", err)
	}
	w := bufio.NewWriter(f)
	return w, func() {
		w.Flush()
		f.Close()
	}, nil
}

// Execute 執行 CLI
func Execute() error {
	return rootCmd.Execute()
}
