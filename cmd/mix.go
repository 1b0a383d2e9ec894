package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"Bt1QLooper/config"
	"Bt1QLooper/core/audio"
	"Bt1QLooper/core/mix"

	"github.com/spf13/cobra"
)

var (
	mixInputs     []string
	mixSpeeds     []float64
	mixVolumes    []int
	mixLoopCount  int
	mixFadeoutMs  float64
	mixRenderer   string
	mixOutput     string
	mixSampleRate int
)

var mixCmd = &cobra.Command{
	Use:   "mix",
	Short: "离线混音导出",
	Long: `不经过服务器，直接把若干本地音频片段按循环时序混音成一个成品文件。
每条音轨可以单独指定速度和音量；最长的音轨决定一遍循环的长度，整体重复
指定的次数并在结尾淡出。`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(mixInputs) == 0 {
			log.Fatal("至少需要一个输入文件 (-i)")
		}
		if len(mixSpeeds) > 0 && len(mixSpeeds) != len(mixInputs) {
			log.Fatalf("speed 参数个数 (%d) 与输入文件个数 (%d) 不一致", len(mixSpeeds), len(mixInputs))
		}
		if len(mixVolumes) > 0 && len(mixVolumes) != len(mixInputs) {
			log.Fatalf("volume 参数个数 (%d) 与输入文件个数 (%d) 不一致", len(mixVolumes), len(mixInputs))
		}

		cfg := config.Load()
		ctx := context.Background()

		tracks := make([]mix.TrackInput, 0, len(mixInputs))
		for i, in := range mixInputs {
			abs, err := filepath.Abs(in)
			if err != nil {
				log.Fatalf("无法解析输入路径 %s: %v", in, err)
			}
			if _, err := os.Stat(abs); err != nil {
				log.Fatalf("输入文件不可读 %s: %v", abs, err)
			}

			naturalMs, err := probeOrDecodeDuration(ctx, cfg.FFprobePath, abs)
			if err != nil {
				log.Fatalf("无法获取 %s 的时长: %v", abs, err)
			}

			speed := 1.0
			if len(mixSpeeds) > 0 {
				speed = mixSpeeds[i]
			}
			volume := 100
			if len(mixVolumes) > 0 {
				volume = mixVolumes[i]
			}

			fmt.Printf("音轨 %d: %s (%.0fms, 速度 %.2fx, 音量 %d)\n", i+1, filepath.Base(abs), naturalMs, speed, volume)
			tracks = append(tracks, mix.TrackInput{
				ID:        int64(i + 1),
				Source:    abs,
				Speed:     speed,
				Volume:    volume,
				NaturalMs: naturalMs,
			})
		}

		if err := mix.ValidateTracks(tracks); err != nil {
			log.Fatalf("音轨参数校验失败: %v", err)
		}

		var strategy mix.RenderStrategy
		switch mixRenderer {
		case "pipeline":
			strategy = mix.NewPipelineRenderer(cfg.FFmpegPath, cfg.FFprobePath, cfg.AudioBitrate)
		case "graph":
			strategy = mix.NewGraphRenderer()
		default:
			log.Fatalf("未知的渲染后端: %s (可选 pipeline/graph)", mixRenderer)
		}

		output := mixOutput
		if output == "" {
			ext := ".wav"
			if mixRenderer == "pipeline" {
				ext = ".m4a"
			}
			output = "mixdown" + ext
		}
		format := strings.TrimPrefix(filepath.Ext(output), ".")

		mixer := mix.NewMixer(strategy)
		mixer.SetProgressCallback(func(p mix.Progress) {
			fmt.Printf("\r渲染进度: %5.1f%%", p.Ratio*100)
		})

		fmt.Printf("开始混音: %d 条音轨, 循环 %d 次, 淡出 %.0fms, 渲染后端 %s\n",
			len(tracks), mixLoopCount, mixFadeoutMs, mixRenderer)

		artifact, err := mixer.Mix(ctx, tracks, output, mix.Options{
			LoopCount:  mixLoopCount,
			FadeoutMs:  mixFadeoutMs,
			Format:     format,
			SampleRate: mixSampleRate,
		})
		fmt.Println()
		if err != nil {
			log.Fatalf("混音失败: %v", err)
		}

		// 图渲染器产出内存数据，落盘到目标路径
		if artifact.Path == "" {
			if err := os.WriteFile(output, artifact.Data, 0644); err != nil {
				log.Fatalf("写出成品失败: %v", err)
			}
			artifact.Path = output
		}

		fmt.Printf("混音完成: %s (%.0fms, %d Hz, %d 字节)\n",
			artifact.Path, artifact.DurationMs, artifact.SampleRate, artifact.Size)
	},
}

// probeOrDecodeDuration 优先用 ffprobe 测时长，ffprobe 不可用时退回内置解码器。
func probeOrDecodeDuration(ctx context.Context, ffprobePath, path string) (float64, error) {
	if ms, err := audio.ProbeDurationMs(ctx, ffprobePath, path); err == nil {
		return ms, nil
	}
	clip, err := audio.ReadClip(path)
	if err != nil {
		return 0, err
	}
	if clip.Rate == 0 {
		return 0, fmt.Errorf("decoded clip has no sample rate: %s", path)
	}
	return float64(clip.Frames()) / float64(clip.Rate) * 1000, nil
}

func init() {
	rootCmd.AddCommand(mixCmd)

	mixCmd.Flags().StringSliceVarP(&mixInputs, "input", "i", nil, "输入音频文件，可重复指定")
	mixCmd.Flags().Float64SliceVar(&mixSpeeds, "speed", nil, "每条音轨的速度因子，与 -i 一一对应，默认全部 1.0")
	mixCmd.Flags().IntSliceVar(&mixVolumes, "volume", nil, "每条音轨的音量 (0-100)，与 -i 一一对应，默认全部 100")
	mixCmd.Flags().IntVarP(&mixLoopCount, "loops", "n", 1, "主循环重复次数")
	mixCmd.Flags().Float64Var(&mixFadeoutMs, "fadeout", 0, "结尾淡出时长（毫秒）")
	mixCmd.Flags().StringVar(&mixRenderer, "renderer", "graph", "渲染后端 (pipeline/graph)")
	mixCmd.Flags().StringVarP(&mixOutput, "output", "o", "", "输出文件路径，默认 mixdown.wav / mixdown.m4a")
	mixCmd.Flags().IntVar(&mixSampleRate, "sample-rate", 0, "渲染采样率，0 使用默认值")

	mixCmd.Example = `  # 两条音轨，第二条加速并压低音量，循环四次带两秒淡出
  1qlooper mix -i drums.wav -i bass.mp3 --speed 1.0,1.5 --volume 100,60 -n 4 --fadeout 2000 -o session.wav

  # 用 ffmpeg 管线渲染出 m4a
  1qlooper mix -i loop.wav --renderer pipeline -o session.m4a`
}
