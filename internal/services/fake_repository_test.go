package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/exam-service/internal/models"
	"github.com/SAP-F-2025/exam-service/internal/repositories"
)

// fakeRepository is an in-memory Repository. Reads hand out copies and
// UpdateWithVersion does a real compare-and-swap, so the optimistic-locking
// paths behave like they do against the database.
type fakeRepository struct {
	mu   sync.Mutex
	txMu sync.Mutex

	attempts         map[uint]*models.ExamAttempt
	attemptQuestions map[uint]*models.AttemptQuestion
	questions        map[uint]*models.Question
	templates        map[uint]*models.ExamTemplate
	users            map[string]*models.User

	nextAttemptID         uint
	nextAttemptQuestionID uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		attempts:         make(map[uint]*models.ExamAttempt),
		attemptQuestions: make(map[uint]*models.AttemptQuestion),
		questions:        make(map[uint]*models.Question),
		templates:        make(map[uint]*models.ExamTemplate),
		users:            make(map[string]*models.User),
	}
}

func (f *fakeRepository) Attempt() repositories.AttemptRepository                 { return (*fakeAttemptRepo)(f) }
func (f *fakeRepository) AttemptQuestion() repositories.AttemptQuestionRepository { return (*fakeAttemptQuestionRepo)(f) }
func (f *fakeRepository) Question() repositories.QuestionRepository               { return (*fakeQuestionRepo)(f) }
func (f *fakeRepository) Template() repositories.TemplateRepository               { return (*fakeTemplateRepo)(f) }
func (f *fakeRepository) User() repositories.UserRepository                       { return (*fakeUserRepo)(f) }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	return fn(f)
}

func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

// ===== SEEDING =====

func (f *fakeRepository) addUser(user *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

func (f *fakeRepository) addTemplate(template *models.ExamTemplate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[template.ID] = template
}

func (f *fakeRepository) addQuestion(question *models.Question) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions[question.ID] = question
}

func (f *fakeRepository) getAttempt(id uint) *models.ExamAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.attempts[id]
	return &copied
}

// ===== ATTEMPTS =====

type fakeAttemptRepo fakeRepository

func (f *fakeAttemptRepo) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAttemptID++
	attempt.ID = f.nextAttemptID
	copied := *attempt
	f.attempts[attempt.ID] = &copied
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, id uint) (*models.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (f *fakeAttemptRepo) GetByIDWithQuestions(ctx context.Context, id uint) (*models.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *stored
	if template, ok := f.templates[copied.TemplateID]; ok {
		copied.Template = *template
	}
	for _, row := range f.attemptQuestions {
		if row.AttemptID != id {
			continue
		}
		rowCopy := *row
		if question, ok := f.questions[row.QuestionID]; ok {
			rowCopy.Question = *question
		}
		copied.Questions = append(copied.Questions, rowCopy)
	}
	sort.Slice(copied.Questions, func(i, j int) bool {
		return copied.Questions[i].Position < copied.Questions[j].Position
	})
	return &copied, nil
}

func (f *fakeAttemptRepo) GetActiveByUser(ctx context.Context, userID string) (*models.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, attempt := range f.attempts {
		if attempt.UserID == userID && attempt.Status == models.AttemptInProgress {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeAttemptRepo) ListByUser(ctx context.Context, userID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*models.ExamAttempt
	for _, attempt := range f.attempts {
		if attempt.UserID != userID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		copied := *attempt
		if template, ok := f.templates[copied.TemplateID]; ok {
			copied.Template = *template
		}
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := int64(len(matched))
	if filters.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filters.Offset:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, total, nil
}

func (f *fakeAttemptRepo) UpdateWithVersion(ctx context.Context, attempt *models.ExamAttempt, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[attempt.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return repositories.ErrVersionConflict
	}
	attempt.Version = expectedVersion + 1
	copied := *attempt
	copied.Questions = nil
	f.attempts[attempt.ID] = &copied
	return nil
}

func (f *fakeAttemptRepo) GetOverdue(ctx context.Context, limit int) ([]*models.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var overdue []*models.ExamAttempt
	for _, attempt := range f.attempts {
		if attempt.Status != models.AttemptInProgress {
			continue
		}
		deadline := attempt.StartedAt.Add(time.Duration(attempt.DurationSeconds) * time.Second)
		if time.Now().After(deadline) {
			copied := *attempt
			overdue = append(overdue, &copied)
		}
		if limit > 0 && len(overdue) == limit {
			break
		}
	}
	return overdue, nil
}

// ===== ATTEMPT QUESTIONS =====

type fakeAttemptQuestionRepo fakeRepository

func (f *fakeAttemptQuestionRepo) CreateBatch(ctx context.Context, rows []*models.AttemptQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.nextAttemptQuestionID++
		row.ID = f.nextAttemptQuestionID
		copied := *row
		f.attemptQuestions[row.ID] = &copied
	}
	return nil
}

func (f *fakeAttemptQuestionRepo) GetByAttemptAndQuestion(ctx context.Context, attemptID, questionID uint) (*models.AttemptQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.attemptQuestions {
		if row.AttemptID == attemptID && row.QuestionID == questionID {
			copied := *row
			if question, ok := f.questions[row.QuestionID]; ok {
				copied.Question = *question
			}
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeAttemptQuestionRepo) ListByAttempt(ctx context.Context, attemptID uint) ([]*models.AttemptQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*models.AttemptQuestion
	for _, row := range f.attemptQuestions {
		if row.AttemptID == attemptID {
			copied := *row
			if question, ok := f.questions[row.QuestionID]; ok {
				copied.Question = *question
			}
			rows = append(rows, &copied)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

func (f *fakeAttemptQuestionRepo) Update(ctx context.Context, row *models.AttemptQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attemptQuestions[row.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *row
	copied.Question = models.Question{}
	f.attemptQuestions[row.ID] = &copied
	return nil
}

// ===== QUESTIONS =====

type fakeQuestionRepo fakeRepository

func (f *fakeQuestionRepo) FindByIDs(ctx context.Context, ids []uint) ([]*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []*models.Question
	for _, id := range ids {
		if question, ok := f.questions[id]; ok {
			copied := *question
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (f *fakeQuestionRepo) FindByCategory(ctx context.Context, categoryID uint, difficulty *models.DifficultyLevel) ([]*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []*models.Question
	for _, question := range f.questions {
		if question.CategoryID == nil || *question.CategoryID != categoryID {
			continue
		}
		if difficulty != nil && question.Difficulty != *difficulty {
			continue
		}
		copied := *question
		found = append(found, &copied)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (f *fakeQuestionRepo) FindAll(ctx context.Context) ([]*models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []*models.Question
	for _, question := range f.questions {
		copied := *question
		found = append(found, &copied)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

// ===== TEMPLATES =====

type fakeTemplateRepo fakeRepository

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id uint) (*models.ExamTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	template, ok := f.templates[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *template
	return &copied, nil
}

func (f *fakeTemplateRepo) List(ctx context.Context, limit, offset int) ([]*models.ExamTemplate, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []*models.ExamTemplate
	for _, template := range f.templates {
		if template.IsActive {
			copied := *template
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, int64(len(active)), nil
}

// ===== USERS =====

type fakeUserRepo fakeRepository

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *user
	return &copied, nil
}
