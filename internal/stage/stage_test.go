package stage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/kondate/internal/history"
	"github.com/haasonsaas/kondate/pkg/models"
)

func proposalSession() *models.Session {
	s := models.NewSession("s1", "u1", time.Now())
	s.SetInventoryItems([]string{"鶏もも肉", "ピーマン", "たまねぎ", "豆腐"})
	s.Candidates[models.StageMain] = []models.Candidate{
		{Title: "唐揚げ", Ingredients: []string{"鶏もも肉"}, Cuisine: models.CategoryJapanese},
		{Title: "チキンソテー", Ingredients: []string{"鶏もも肉", "ピーマン"}, Cuisine: models.CategoryWestern},
	}
	return s
}

func TestSelectRecordsAndAdvances(t *testing.T) {
	s := proposalSession()

	result, err := Select(s, 1)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if result.Selected.Title != "チキンソテー" {
		t.Fatalf("selected = %q", result.Selected.Title)
	}
	if s.Stage != models.StageSub || result.Stage != models.StageSub {
		t.Fatalf("stage = %s, want sub", s.Stage)
	}
	if !result.RequiresNext {
		t.Fatal("sub stage still pending, RequiresNext must be true")
	}
	if s.MenuCategory != models.CategoryWestern {
		t.Fatalf("menu category = %s, want western from main dish", s.MenuCategory)
	}
	if len(result.UsedIngredients) != 2 {
		t.Fatalf("used = %v", result.UsedIngredients)
	}
	if len(s.Candidates[models.StageMain]) != 0 {
		t.Fatal("consumed proposal must be cleared")
	}
}

func TestSelectValidation(t *testing.T) {
	s := proposalSession()

	if _, err := Select(s, 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("error = %v, want ErrIndexOutOfRange", err)
	}

	s.Candidates = map[models.Stage][]models.Candidate{}
	if _, err := Select(s, 0); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("error = %v, want ErrNoCandidates", err)
	}

	s.Stage = models.StageCompleted
	if _, err := Select(s, 0); !errors.Is(err, ErrCompleted) {
		t.Fatalf("error = %v, want ErrCompleted", err)
	}
}

func TestStageOnlyAdvances(t *testing.T) {
	s := proposalSession()

	if _, err := Select(s, 0); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	s.Candidates[models.StageSub] = []models.Candidate{{Title: "サラダ", Ingredients: []string{"たまねぎ"}}}
	result, err := Select(s, 0)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if result.Stage != models.StageSoup {
		t.Fatalf("stage = %s, want soup", result.Stage)
	}

	s.Candidates[models.StageSoup] = []models.Candidate{{Title: "味噌汁", Ingredients: []string{"豆腐"}}}
	result, err = Select(s, 0)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if result.Stage != models.StageCompleted || result.RequiresNext {
		t.Fatalf("final stage = %s requiresNext = %v", result.Stage, result.RequiresNext)
	}

	// Earlier selections keep their position in the union.
	if result.UsedIngredients[0] != "鶏もも肉" {
		t.Fatalf("used order = %v", result.UsedIngredients)
	}
}

func TestRecordProposalTracksTitles(t *testing.T) {
	s := models.NewSession("s1", "u1", time.Now())

	RecordProposal(s, models.StageMain, "task2", []models.Candidate{{Title: "唐揚げ"}, {Title: "生姜焼き"}})
	RecordProposal(s, models.StageMain, "task4", []models.Candidate{{Title: "チキン南蛮"}})

	titles := s.ProposedTitles[models.StageMain]
	if len(titles) != 3 {
		t.Fatalf("proposed titles = %v", titles)
	}
	if len(s.Candidates[models.StageMain]) != 1 {
		t.Fatal("latest proposal replaces the pending candidates")
	}
	conf := s.Confirmation
	if conf == nil || conf.Kind != models.ConfirmStageSelection || conf.Selection == nil {
		t.Fatalf("confirmation = %+v", conf)
	}
	if conf.Selection.TaskID != "task4" || conf.Selection.Stage != models.StageMain {
		t.Fatalf("selection = %+v", conf.Selection)
	}
}

func TestValidateTaskID(t *testing.T) {
	s := models.NewSession("s1", "u1", time.Now())
	RecordProposal(s, models.StageMain, "task2", []models.Candidate{{Title: "唐揚げ"}})

	if err := ValidateTaskID(s, "task2"); err != nil {
		t.Fatalf("matching id error = %v", err)
	}
	if err := ValidateTaskID(s, ""); err != nil {
		t.Fatalf("empty echo error = %v", err)
	}
	if err := ValidateTaskID(s, "task9"); !errors.Is(err, ErrTaskMismatch) {
		t.Fatalf("error = %v, want ErrTaskMismatch", err)
	}

	s.Confirmation = nil
	if err := ValidateTaskID(s, "task2"); !errors.Is(err, ErrTaskMismatch) {
		t.Fatalf("error = %v, want ErrTaskMismatch with no proposal", err)
	}
}

func TestSaveMenuLabelsTitles(t *testing.T) {
	store, err := history.NewStore("")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	s := models.NewSession("s1", "u1", time.Now())
	s.MenuCategory = models.CategoryJapanese
	s.SelectedRecipes[models.StageMain] = &models.Recipe{Title: "唐揚げ", Source: models.SourceLLM}
	s.SelectedRecipes[models.StageSoup] = &models.Recipe{Title: "味噌汁", Source: models.SourceRAG, URL: "https://example.com/miso"}

	ids, err := SaveMenu(context.Background(), store, s, nil)
	if err != nil {
		t.Fatalf("SaveMenu() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("saved ids = %v", ids)
	}

	records, err := store.List(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	var sawMain bool
	for _, rec := range records {
		if strings.HasPrefix(rec.Title, "【主菜】") {
			sawMain = true
		}
		if rec.Category != string(models.CategoryJapanese) {
			t.Fatalf("category = %q", rec.Category)
		}
	}
	if !sawMain {
		t.Fatal("main dish title must carry the stage label")
	}
}
