package imgx

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // 报告图一般是 PNG，但也允许 JPEG
	_ "image/png"
	"io"
	"os"
)

// Info 是图片头部信息（不解码像素）。
type Info struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Inspect 只读取图片头部，返回格式与尺寸。
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return InspectReader(f)
}

// InspectReader 同 Inspect，但从任意 reader 读取。
func InspectReader(r io.Reader) (Info, error) {
	if r == nil {
		return Info{}, errors.New("reader 为空")
	}
	cfg, format, err := image.DecodeConfig(bufio.NewReader(r))
	if err != nil {
		return Info{}, fmt.Errorf("解析图片头失败：%w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, errors.New("图片尺寸无效")
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
