package app

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cryptotrade/internal/portfolio"
)

// parseTargets 解析 CURRENCY=WEIGHT 形式的目标权重参数。
func parseTargets(entries []string) (portfolio.Weights, error) {
	targets := make(portfolio.Weights, len(entries))
	for _, entry := range entries {
		currency, value, err := splitEntry(entry)
		if err != nil {
			return nil, err
		}
		weight, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("app: 无效的权重 %q: %w", entry, err)
		}
		if weight < 0 {
			return nil, fmt.Errorf("app: 权重不能为负: %q", entry)
		}
		if _, ok := targets[currency]; ok {
			return nil, fmt.Errorf("app: 重复的目标币种 %s", currency)
		}
		targets[currency] = weight
	}
	if err := targets.CheckSum(); err != nil {
		return nil, err
	}
	return targets, nil
}

// parseBalances 解析 CURRENCY=AMOUNT 形式的虚拟余额参数，空输入返回 nil。
func parseBalances(entries []string) (portfolio.Balances, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	raw := make(map[string]float64, len(entries))
	for _, entry := range entries {
		currency, value, err := splitEntry(entry)
		if err != nil {
			return nil, err
		}
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("app: 无效的余额 %q: %w", entry, err)
		}
		if amount < 0 {
			return nil, fmt.Errorf("app: 余额不能为负: %q", entry)
		}
		raw[currency] = amount
	}
	return portfolio.NewBalances(raw), nil
}

func splitEntry(entry string) (currency, value string, err error) {
	parts := strings.SplitN(entry, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("app: 参数格式应为 CURRENCY=VALUE，实际为 %q", entry)
	}
	return normalizeCurrency(parts[0]), parts[1], nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// promptProceed 从标准输入读取确认，仅 y/Y 视为同意。
func promptProceed() (bool, error) {
	fmt.Print("Would you like to proceed? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("app: 读取确认输入失败: %w", err)
	}
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y", nil
}
