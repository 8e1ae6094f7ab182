package sheetstore

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleOptions Google Sheets 凭据配置
type GoogleOptions struct {
	CredentialsFile string // 服务账号 JSON 文件
	CredentialsJSON []byte // 服务账号 JSON 内容（优先于文件）
}

// GoogleStore 基于 Google Sheets v4 values API 的区域存储
type GoogleStore struct {
	service *sheets.Service
}

// NewGoogleStore 创建 Google Sheets 存储；未提供服务账号时使用 Application Default Credentials
func NewGoogleStore(ctx context.Context, opts GoogleOptions) (*GoogleStore, error) {
	var tokenSource oauth2.TokenSource

	jsonKey := opts.CredentialsJSON
	if len(jsonKey) == 0 && opts.CredentialsFile != "" {
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jsonKey = data
	}

	if len(jsonKey) > 0 {
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		ts, err := google.DefaultTokenSource(ctx, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to find default credentials: %w", err)
		}
		tokenSource = ts
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return &GoogleStore{service: srv}, nil
}

// ReadRange 读取区域（格式化后的显示值）
func (s *GoogleStore) ReadRange(ctx context.Context, ref RangeRef) (Matrix, error) {
	resp, err := s.service.Spreadsheets.Values.Get(ref.SpreadsheetID, ref.A1()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	out := make(Matrix, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		out = append(out, cells)
	}
	return Trim(out), nil
}

// AppendRow 追加一行（USER_ENTERED / INSERT_ROWS）
func (s *GoogleStore) AppendRow(ctx context.Context, ref RangeRef, row []string) error {
	vr := &sheets.ValueRange{Values: toValues(Matrix{row})}
	_, err := s.service.Spreadsheets.Values.Append(ref.SpreadsheetID, ref.A1(), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", ref, err)
	}
	return nil
}

// WriteRange 写入区域
func (s *GoogleStore) WriteRange(ctx context.Context, ref RangeRef, values Matrix) error {
	vr := &sheets.ValueRange{Values: toValues(values)}
	_, err := s.service.Spreadsheets.Values.Update(ref.SpreadsheetID, ref.A1(), vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}

// ClearRange 清空区域
func (s *GoogleStore) ClearRange(ctx context.Context, ref RangeRef) error {
	_, err := s.service.Spreadsheets.Values.Clear(ref.SpreadsheetID, ref.A1(), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", ref, err)
	}
	return nil
}

func toValues(m Matrix) [][]interface{} {
	out := make([][]interface{}, len(m))
	for i, row := range m {
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}
