package xiaohongshu

import (
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFinder 记录调用顺序，按预设返回命中或未命中。
type stubFinder struct {
	hits      map[string]bool // selector -> 是否命中
	textHit   bool
	calls     []string
	textCalls []string
}

func (s *stubFinder) Element(selector string) (*rod.Element, error) {
	s.calls = append(s.calls, selector)
	if s.hits[selector] {
		return &rod.Element{}, nil
	}
	return nil, errors.New("not found")
}

func (s *stubFinder) ElementR(selector, pattern string) (*rod.Element, error) {
	s.textCalls = append(s.textCalls, selector+"|"+pattern)
	if s.textHit {
		return &rod.Element{}, nil
	}
	return nil, errors.New("not found")
}

func TestLocateSelectorOrder(t *testing.T) {
	// 第二个选择器命中时，不再尝试后续选择器，也不走文本兜底
	f := &stubFinder{hits: map[string]bool{
		"button[class*=\"publish\"]": true,
	}}

	el, err := locate(f, RolePublishButton, 0)
	require.NoError(t, err)
	require.NotNil(t, el)

	assert.Equal(t, []string{
		"button.publishBtn",
		"button[class*=\"publish\"]",
	}, f.calls)
	assert.Empty(t, f.textCalls)
}

func TestLocateTextFallback(t *testing.T) {
	f := &stubFinder{hits: map[string]bool{}, textHit: true}

	el, err := locate(f, RolePublishButton, 0)
	require.NoError(t, err)
	require.NotNil(t, el)

	// 结构化选择器全部尝试过之后才走文本兜底
	assert.Len(t, f.calls, len(strategies[RolePublishButton].selectors))
	assert.Equal(t, []string{"button|发布|提交"}, f.textCalls)
}

func TestLocateNotFound(t *testing.T) {
	f := &stubFinder{hits: map[string]bool{}}

	el, err := locate(f, RoleTitleInput, 0)
	assert.Nil(t, el)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, RoleTitleInput, notFound.Role)
	assert.Equal(t, strategies[RoleTitleInput].selectors, notFound.Selectors)
	assert.Contains(t, notFound.Error(), string(RoleTitleInput))
}

func TestLocatePollingRecovers(t *testing.T) {
	// 前两轮全部未命中，之后元素出现，轮询应在预算内找到
	f := &delayedFinder{readyAfter: 2}

	start := time.Now()
	el, err := locate(f, RoleTitleInput, 3*time.Second)
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLocateUnknownRole(t *testing.T) {
	_, err := locate(&stubFinder{}, Role("no-such-role"), 0)
	require.Error(t, err)
}

func TestLocateBudgetCoversProbeLatency(t *testing.T) {
	// 每次探测 250ms，4 个选择器一轮就是 1s。预算 2s 时必须在
	// 预算耗尽后很快放弃，而不是按轮数把慢探测无限放大。
	f := &slowFinder{probe: 250 * time.Millisecond}

	start := time.Now()
	_, err := locate(f, RoleTitleInput, 2*time.Second)
	elapsed := time.Since(start)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Less(t, elapsed, 4*time.Second)
}

// slowFinder 每次探测都固定耗时且永不命中。
type slowFinder struct{ probe time.Duration }

func (s *slowFinder) Element(selector string) (*rod.Element, error) {
	time.Sleep(s.probe)
	return nil, errors.New("not found")
}

func (s *slowFinder) ElementR(selector, pattern string) (*rod.Element, error) {
	return nil, errors.New("not found")
}

// delayedFinder 前 readyAfter 轮查询都失败，之后首个选择器命中。
type delayedFinder struct {
	readyAfter int
	rounds     int
}

func (d *delayedFinder) Element(selector string) (*rod.Element, error) {
	if selector == strategies[RoleTitleInput].selectors[0] {
		d.rounds++
	}
	if d.rounds > d.readyAfter {
		return &rod.Element{}, nil
	}
	return nil, errors.New("not found")
}

func (d *delayedFinder) ElementR(selector, pattern string) (*rod.Element, error) {
	return nil, errors.New("not found")
}
