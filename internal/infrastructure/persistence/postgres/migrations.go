// Package postgres implements the durable store for PoraKhela.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LESSONS AND QUESTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create lesson content tables
-- Version: 001

CREATE TABLE IF NOT EXISTS lessons (
    id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    subject VARCHAR(50) NOT NULL,
    question_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_question_count CHECK (question_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_lessons_subject ON lessons(subject);

CREATE TABLE IF NOT EXISTS questions (
    id VARCHAR(64) PRIMARY KEY,
    lesson_id VARCHAR(64) NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    prompt TEXT NOT NULL,
    options JSONB NOT NULL DEFAULT '[]'::jsonb,
    correct_index INTEGER NOT NULL,
    difficulty VARCHAR(10) NOT NULL DEFAULT 'easy',
    time_limit_ms BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT valid_difficulty CHECK (difficulty IN ('easy', 'medium', 'hard')),
    CONSTRAINT valid_correct_index CHECK (correct_index >= 0),
    CONSTRAINT valid_time_limit CHECK (time_limit_ms >= 0),
    CONSTRAINT uq_questions_lesson_position UNIQUE (lesson_id, position)
);

CREATE INDEX IF NOT EXISTS idx_questions_lesson_id ON questions(lesson_id, position);
`


// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE LEARNING RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create submission, ledger and progress tables
-- Version: 002

CREATE TABLE IF NOT EXISTS answer_submissions (
    id UUID PRIMARY KEY,
    lesson_id VARCHAR(64) NOT NULL,
    question_id VARCHAR(64) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    selected_index INTEGER NOT NULL,
    is_correct BOOLEAN NOT NULL,
    time_taken_ms BIGINT NOT NULL,
    points_earned INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    sync_state VARCHAR(10) NOT NULL DEFAULT 'pending',
    sync_attempts INTEGER NOT NULL DEFAULT 0,
    idempotency_key VARCHAR(64) NOT NULL,

    -- One answer per question per learner. selected_index -1 marks a timeout.
    CONSTRAINT uq_submissions_business_key UNIQUE (lesson_id, question_id, user_id),
    CONSTRAINT valid_selected_index CHECK (selected_index >= -1),
    CONSTRAINT valid_time_taken CHECK (time_taken_ms >= 0),
    CONSTRAINT valid_sub_sync_state CHECK (sync_state IN ('pending', 'syncing', 'synced', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_user_created ON answer_submissions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_sync_state ON answer_submissions(sync_state) WHERE sync_state != 'synced';

CREATE TABLE IF NOT EXISTS points_ledger (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    source VARCHAR(20) NOT NULL,
    related_id VARCHAR(100) NOT NULL,
    points INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    sync_state VARCHAR(10) NOT NULL DEFAULT 'pending',
    sync_attempts INTEGER NOT NULL DEFAULT 0,
    idempotency_key VARCHAR(64) NOT NULL,

    -- At most one grant per logical award.
    CONSTRAINT uq_ledger_business_key UNIQUE (user_id, lesson_id, source, related_id),
    CONSTRAINT valid_source CHECK (source IN ('answer', 'achievement', 'streak', 'bonus')),
    CONSTRAINT valid_points CHECK (points >= 0),
    CONSTRAINT valid_ledger_sync_state CHECK (sync_state IN ('pending', 'syncing', 'synced', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_ledger_user_created ON points_ledger(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS progress_records (
    lesson_id VARCHAR(64) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    questions_answered INTEGER NOT NULL DEFAULT 0,
    correct_count INTEGER NOT NULL DEFAULT 0,
    total_time_ms BIGINT NOT NULL DEFAULT 0,
    best_time_ms BIGINT NOT NULL DEFAULT 0,
    status VARCHAR(15) NOT NULL DEFAULT 'not_started',
    completed_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (lesson_id, user_id),
    CONSTRAINT valid_status CHECK (status IN ('not_started', 'in_progress', 'completed')),
    CONSTRAINT valid_counts CHECK (correct_count >= 0 AND correct_count <= questions_answered)
);

CREATE INDEX IF NOT EXISTS idx_progress_user_completed ON progress_records(user_id, completed_at) WHERE status = 'completed';
`


// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE SYNC QUEUE AND TIMERS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create outbox queue and timer snapshot tables
-- Version: 003

CREATE TABLE IF NOT EXISTS sync_queue (
    id UUID PRIMARY KEY,
    kind VARCHAR(15) NOT NULL,
    ref_id UUID NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    idempotency_key VARCHAR(64) NOT NULL UNIQUE,
    payload JSONB NOT NULL,
    state VARCHAR(10) NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    claimed_at TIMESTAMP WITH TIME ZONE,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_kind CHECK (kind IN ('submission', 'ledger')),
    CONSTRAINT valid_queue_state CHECK (state IN ('pending', 'syncing', 'synced', 'failed')),
    CONSTRAINT valid_retry_count CHECK (retry_count >= 0)
);

-- Drain order: oldest due work first, grouped per learner and lesson.
CREATE INDEX IF NOT EXISTS idx_sync_queue_due ON sync_queue(next_attempt_at, created_at) WHERE state = 'pending';
CREATE INDEX IF NOT EXISTS idx_sync_queue_group ON sync_queue(user_id, lesson_id, created_at);
CREATE INDEX IF NOT EXISTS idx_sync_queue_state ON sync_queue(state) WHERE state != 'synced';
-- Stale claim recovery scans only in-flight items.
CREATE INDEX IF NOT EXISTS idx_sync_queue_claimed ON sync_queue(claimed_at) WHERE state = 'syncing';

CREATE TABLE IF NOT EXISTS timer_sessions (
    session_id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    question_id VARCHAR(64) NOT NULL,
    state VARCHAR(10) NOT NULL,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    paused_at TIMESTAMP WITH TIME ZONE,
    accum_paused_ms BIGINT NOT NULL DEFAULT 0,
    time_limit_ms BIGINT NOT NULL DEFAULT 0,
    saved_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_timer_state CHECK (state IN ('idle', 'running', 'paused', 'expired', 'stopped')),
    CONSTRAINT valid_accum_paused CHECK (accum_paused_ms >= 0)
);

-- One active timer per learner.
CREATE UNIQUE INDEX IF NOT EXISTS uq_timer_sessions_active_user
    ON timer_sessions(user_id) WHERE state IN ('running', 'paused');
`

