package similarity

import "testing"

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"korean with punctuation", "배포는 어떻게 하나요?", []string{"배포는", "어떻게", "하나요"}},
		{"drops single-rune tokens", "뭐 먹지", []string{"먹지"}},
		{"lowercases ascii", "CI Pipeline 설정", []string{"ci", "pipeline", "설정"}},
		{"empty", "", nil},
		{"only punctuation", "?! ...", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"cat", "cat", 0},
		{"cat", "bat", 1},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"뭔가요", "하나요", 2},
	}

	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEditDistanceSkipsLongTokens(t *testing.T) {
	long := "verylongtokenthatkeepsgoing"
	if got := EditDistance(long, "short"); got <= partialDistance {
		t.Errorf("EditDistance with oversized token = %d, want a large sentinel", got)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	if got := Score("", "배포는 어떻게 하나요?"); got != 0 {
		t.Errorf("Score with empty first text = %v, want 0", got)
	}
	if got := Score("배포는 어떻게 하나요?", ""); got != 0 {
		t.Errorf("Score with empty second text = %v, want 0", got)
	}
}

func TestScoreReflexiveMaximality(t *testing.T) {
	x := "배포는 어떻게 하나요?"
	self := Score(x, x)
	if self != 1.0 {
		t.Fatalf("Score(x, x) = %v, want 1.0", self)
	}

	others := []string{
		"배포 방법이 뭔가요",
		"오늘 점심 뭐 먹지",
		"completely unrelated text here",
	}
	for _, y := range others {
		if got := Score(x, y); got > self {
			t.Errorf("Score(x, %q) = %v exceeds Score(x, x) = %v", y, got, self)
		}
	}
}

func TestScoreSimilarQuestions(t *testing.T) {
	got := Score("배포 방법이 뭔가요", "배포는 어떻게 하나요?")
	if got < 0.3 {
		t.Errorf("Score for rephrased question = %v, want >= 0.3", got)
	}
}

func TestScoreUnrelatedQuestions(t *testing.T) {
	got := Score("오늘 점심 뭐 먹지", "배포는 어떻게 하나요?")
	if got >= 0.3 {
		t.Errorf("Score for unrelated question = %v, want < 0.3", got)
	}
}

func TestScoreExactOverlapWeighsDouble(t *testing.T) {
	exact := Score("서버 재시작", "서버 재시작 방법")
	partial := Score("서버는 재시작을", "서버 재시작 방법")
	if exact <= partial {
		t.Errorf("exact overlap %v should outscore partial overlap %v", exact, partial)
	}
}
